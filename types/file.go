package types

// UploadedFile describes an image stored in object storage.
type UploadedFile struct {
	// SecureURL is the public URL clients put in a product's images.
	SecureURL string `json:"secureUrl"`

	// Key is the object key inside the bucket.
	Key string `json:"key"`
}
