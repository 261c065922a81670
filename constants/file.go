package constants

// AllowedMIMETypes is the intake allow-list for uploaded receipts.
var AllowedMIMETypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"application/pdf": {},
}

// MIMETypeAllowed reports whether the declared media type is accepted at registration.
func MIMETypeAllowed(mimeType string) bool {
	_, ok := AllowedMIMETypes[mimeType]
	return ok
}
