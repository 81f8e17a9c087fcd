package credentials

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/urmzd/homai-gateway/internal/beeeon"
)

func testCipher(t *testing.T) (*Cipher, CryptoParams) {
	t.Helper()

	params, err := DeriveParams()
	if err != nil {
		t.Fatalf("DeriveParams: %v", err)
	}
	cipher, err := NewCipher("gateway-secret", params)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return cipher, params
}

func TestCipherRoundtrip(t *testing.T) {
	cipher, _ := testCipher(t)

	for _, plaintext := range []string{"", "pinkod01", "user@example.com", "p4ss w0rd"} {
		enc, err := cipher.EncryptString(plaintext)
		if err != nil {
			t.Fatalf("EncryptString(%q): %v", plaintext, err)
		}
		if enc == plaintext && plaintext != "" {
			t.Errorf("EncryptString(%q) did not change the value", plaintext)
		}
		dec, err := cipher.DecryptString(enc)
		if err != nil {
			t.Fatalf("DecryptString: %v", err)
		}
		if dec != plaintext {
			t.Errorf("roundtrip of %q produced %q", plaintext, dec)
		}
	}
}

func TestParamsRoundtrip(t *testing.T) {
	params, err := DeriveParams()
	if err != nil {
		t.Fatalf("DeriveParams: %v", err)
	}

	parsed, err := ParseParams(params.String())
	if err != nil {
		t.Fatalf("ParseParams(%q): %v", params.String(), err)
	}
	if parsed.Algorithm != params.Algorithm ||
		!bytes.Equal(parsed.Salt, params.Salt) ||
		parsed.Iterations != params.Iterations {
		t.Errorf("params roundtrip mismatch: %v vs %v", parsed, params)
	}
}

func TestPinPersistence(t *testing.T) {
	cipher, params := testCipher(t)
	id := beeeon.NewDeviceID(beeeon.PrefixVPT, 0x01)

	cred := NewPinCredentials(params)
	if err := cred.SetPin("pinkod01", cipher); err != nil {
		t.Fatalf("SetPin: %v", err)
	}

	storage := NewStorage()
	storage.InsertOrUpdate(id, cred)

	conf := NewConfigTree()
	storage.Save(conf, "credentials")

	prefix := "credentials." + id.String()
	if typ, _ := conf.Get(prefix + ".type"); typ != "pin" {
		t.Errorf("type key = %q, want pin", typ)
	}
	if p, _ := conf.Get(prefix + ".params"); p != params.String() {
		t.Errorf("params key = %q, want %q", p, params.String())
	}
	if enc, _ := conf.Get(prefix + ".pin"); enc == "pinkod01" || enc == "" {
		t.Errorf("pin key = %q, want an encrypted value", enc)
	}

	// reload through the factory path
	reloaded := NewStorage()
	reloaded.Load(conf, "credentials")

	got, ok := reloaded.Find(id)
	if !ok {
		t.Fatal("reloaded storage has no entry")
	}
	pin, err := got.(*PinCredentials).Pin(cipher)
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if pin != "pinkod01" {
		t.Errorf("pin = %q, want pinkod01", pin)
	}
}

func TestSaveLoadSaveIsStable(t *testing.T) {
	cipher, params := testCipher(t)

	pwd := NewPasswordCredentials(params)
	if err := pwd.SetUsername("admin", cipher); err != nil {
		t.Fatal(err)
	}
	if err := pwd.SetPassword("secret", cipher); err != nil {
		t.Fatal(err)
	}

	pin := NewPinCredentials(params)
	if err := pin.SetPin("1234", cipher); err != nil {
		t.Fatal(err)
	}

	storage := NewStorage()
	storage.InsertOrUpdate(beeeon.NewDeviceID(beeeon.PrefixPhilips, 10), pwd)
	storage.InsertOrUpdate(beeeon.NewDeviceID(beeeon.PrefixVPT, 20), pin)

	first := NewConfigTree()
	storage.Save(first, "credentials")

	reloaded := NewStorage()
	reloaded.Load(first, "credentials")

	second := NewConfigTree()
	reloaded.Save(second, "credentials")

	if !bytes.Equal(first.Marshal(), second.Marshal()) {
		t.Errorf("save-load-save not stable:\n%s\nvs\n%s", first.Marshal(), second.Marshal())
	}
}

func TestLoadSkipsMalformedEntries(t *testing.T) {
	cipher, params := testCipher(t)
	goodID := beeeon.NewDeviceID(beeeon.PrefixVPT, 7)

	good := NewPinCredentials(params)
	if err := good.SetPin("ok", cipher); err != nil {
		t.Fatal(err)
	}

	conf := NewConfigTree()
	good.Save(conf, goodID, "credentials")

	// bad device id key
	conf.Set("credentials.not-a-device.type", "pin")
	conf.Set("credentials.not-a-device.pin", "x")
	// unknown credential type
	conf.Set("credentials.philips:0000000000000f.type", "certificate")
	// entry missing its fields
	conf.Set("credentials.vpt:00000000000009.type", "pin")

	storage := NewStorage()
	storage.Load(conf, "credentials")

	if _, ok := storage.Find(goodID); !ok {
		t.Error("valid entry was not loaded")
	}
	if _, ok := storage.Find(beeeon.NewDeviceID(beeeon.PrefixPhilips, 0xf)); ok {
		t.Error("unknown-type entry should be skipped")
	}
	if _, ok := storage.Find(beeeon.NewDeviceID(beeeon.PrefixVPT, 9)); ok {
		t.Error("incomplete entry should be skipped")
	}
}

func TestFileStorageRoundtrip(t *testing.T) {
	cipher, params := testCipher(t)
	file := filepath.Join(t.TempDir(), "credentials.properties")
	id := beeeon.NewDeviceID(beeeon.PrefixConrad, 0x38d649)

	storage := NewFileStorage(file)
	storage.SetSaveDelay(-1) // no autosave in tests

	cred := NewPasswordCredentials(params)
	if err := cred.SetUsername("conrad", cipher); err != nil {
		t.Fatal(err)
	}
	if err := cred.SetPassword("hunter2", cipher); err != nil {
		t.Fatal(err)
	}
	storage.InsertOrUpdate(id, cred)

	if err := storage.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if bytes.Contains(data, []byte("hunter2")) {
		t.Error("plaintext password leaked into the credentials file")
	}

	fresh := NewFileStorage(file)
	fresh.SetSaveDelay(-1)
	fresh.Load()

	got, ok := fresh.Find(id)
	if !ok {
		t.Fatal("entry missing after reload")
	}
	password, err := got.(*PasswordCredentials).Password(cipher)
	if err != nil {
		t.Fatalf("Password: %v", err)
	}
	if password != "hunter2" {
		t.Errorf("password = %q, want hunter2", password)
	}
}
