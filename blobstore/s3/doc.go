// Package s3 stores array blobs in Amazon S3.
//
//	store, err := s3.New(ctx, "my-bucket", "arrays/", "us-east-1")
//	arr, err := arraystore.Open(ctx, store, "dense_array")
//
// Reads are ranged GETs; blobs above UploadConfig.MultipartThreshold are
// uploaded in parts. Small uploads carry a CRC32C checksum.
package s3
