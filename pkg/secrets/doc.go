// Package secrets encrypts tenant secrets at rest.
//
// A Cipher holds one 32-byte application key. Each tenant gets its own
// AES-256-GCM key derived with HKDF-SHA256 from the application key and
// the tenant id, and the tenant id is bound as additional data, so a value
// copied to another tenant's row fails to decrypt.
//
//	key, err := secrets.ParseKey(os.Getenv("TENANCY_SECRETS_KEY"))
//	c, err := secrets.NewCipher(key)
//	enc, err := c.Encrypt(tenantID, "postgres://...")
//	dsn, err := c.Decrypt(tenantID, enc)
//
// Encrypted values carry an "enc:v1:" prefix; Decrypt returns values
// without it unchanged.
package secrets
