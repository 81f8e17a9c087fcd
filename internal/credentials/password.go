package credentials

import "github.com/urmzd/homai-gateway/internal/beeeon"

// TypePassword tags username/password credentials.
const TypePassword = "password"

// PasswordCredentials holds an encrypted username/password pair. Both
// fields are stored as base64-of-ciphertext; the plaintext only exists
// transiently inside SetUsername/Username and friends.
type PasswordCredentials struct {
	params   CryptoParams
	username string
	password string
}

func NewPasswordCredentials(params CryptoParams) *PasswordCredentials {
	return &PasswordCredentials{params: params}
}

func (c *PasswordCredentials) Type() string         { return TypePassword }
func (c *PasswordCredentials) Params() CryptoParams { return c.params }

func (c *PasswordCredentials) SetUsername(username string, cipher *Cipher) error {
	enc, err := cipher.EncryptString(username)
	if err != nil {
		return err
	}
	c.username = enc
	return nil
}

func (c *PasswordCredentials) SetPassword(password string, cipher *Cipher) error {
	enc, err := cipher.EncryptString(password)
	if err != nil {
		return err
	}
	c.password = enc
	return nil
}

func (c *PasswordCredentials) Username(cipher *Cipher) (string, error) {
	return cipher.DecryptString(c.username)
}

func (c *PasswordCredentials) Password(cipher *Cipher) (string, error) {
	return cipher.DecryptString(c.password)
}

// SetRawUsername stores an already-encrypted username verbatim.
func (c *PasswordCredentials) SetRawUsername(username string) { c.username = username }

// SetRawPassword stores an already-encrypted password verbatim.
func (c *PasswordCredentials) SetRawPassword(password string) { c.password = password }

func (c *PasswordCredentials) Save(conf *ConfigTree, device beeeon.DeviceID, root string) {
	conf.Set(entryKey(root, device, "type"), TypePassword)
	conf.Set(entryKey(root, device, "params"), c.params.String())
	conf.Set(entryKey(root, device, "username"), c.username)
	conf.Set(entryKey(root, device, "password"), c.password)
}

// CreatePasswordCredentials is the load-time factory for TypePassword.
func CreatePasswordCredentials(view ConfigView) (Credentials, error) {
	params, err := viewParams(view)
	if err != nil {
		return nil, err
	}
	username, err := view.MustGet("username")
	if err != nil {
		return nil, err
	}
	password, err := view.MustGet("password")
	if err != nil {
		return nil, err
	}

	c := NewPasswordCredentials(params)
	c.SetRawUsername(username)
	c.SetRawPassword(password)
	return c, nil
}
