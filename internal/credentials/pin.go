package credentials

import "github.com/urmzd/homai-gateway/internal/beeeon"

// TypePin tags PIN credentials.
const TypePin = "pin"

// PinCredentials holds a single encrypted PIN.
type PinCredentials struct {
	params CryptoParams
	pin    string
}

func NewPinCredentials(params CryptoParams) *PinCredentials {
	return &PinCredentials{params: params}
}

func (c *PinCredentials) Type() string         { return TypePin }
func (c *PinCredentials) Params() CryptoParams { return c.params }

func (c *PinCredentials) SetPin(pin string, cipher *Cipher) error {
	enc, err := cipher.EncryptString(pin)
	if err != nil {
		return err
	}
	c.pin = enc
	return nil
}

func (c *PinCredentials) Pin(cipher *Cipher) (string, error) {
	return cipher.DecryptString(c.pin)
}

// SetRawPin stores an already-encrypted PIN verbatim.
func (c *PinCredentials) SetRawPin(pin string) { c.pin = pin }

func (c *PinCredentials) Save(conf *ConfigTree, device beeeon.DeviceID, root string) {
	conf.Set(entryKey(root, device, "type"), TypePin)
	conf.Set(entryKey(root, device, "params"), c.params.String())
	conf.Set(entryKey(root, device, "pin"), c.pin)
}

// CreatePinCredentials is the load-time factory for TypePin.
func CreatePinCredentials(view ConfigView) (Credentials, error) {
	params, err := viewParams(view)
	if err != nil {
		return nil, err
	}
	pin, err := view.MustGet("pin")
	if err != nil {
		return nil, err
	}

	c := NewPinCredentials(params)
	c.SetRawPin(pin)
	return c, nil
}
