// Package secure keeps operator-supplied secret material out of ordinary Go
// memory while objsign validates and uploads it.
//
// Material is read straight into an mlocked buffer and sealed in a memguard
// enclave (XSalsa20Poly1305). It is decrypted only for the duration of a Use
// callback:
//
//	buf, err := secure.ReadSecureBuffer(os.Stdin)
//	if err != nil {
//	    return err
//	}
//	defer buf.Destroy()
//
//	err = buf.Use(func(plaintext []byte) error {
//	    return validate(plaintext)
//	})
//
// On Linux, locking requires RLIMIT_MEMLOCK to allow it. memguard.Purge in
// main wipes every enclave key at exit.
package secure
