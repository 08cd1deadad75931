// Package presigned issues and verifies HMAC-signed download links for
// backends that cannot sign URLs themselves, such as the filesystem gateway.
//
// A link carries the signed path plus two query parameters:
//
//	/download/resources/42/report.pdf?signature=<hex>&expires=<unix>
//
// The signature is HMAC-SHA256 over "METHOD|PATH|EXPIRES".
//
// # Basic Usage
//
//	signer := presigned.New(presigned.WithSecretKey(key))
//	link, err := signer.SignKey("resources/42/report.pdf", time.Hour)
//
// Mount the middleware in front of the handler that streams the object:
//
//	r.Handle("/download/*", presigned.ValidateMiddleware(signer, logger, downloadHandler))
//
// The handler reads the verified key with KeyFromContext.
package presigned
