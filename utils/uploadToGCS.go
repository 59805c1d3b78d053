package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// getGoogleClient initializes a Google Cloud Storage client
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
	// If you need to provide explicit JSON (e.g. locally), set GCS_CREDENTIALS_JSON.
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		client, err := storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func UploadBytesToGCS(ctx context.Context, objectName string, data []byte, contentType string) error {
	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	bucketName := os.Getenv("GCS_BUCKET")
	if bucketName == "" {
		return errors.New("GCS_BUCKET is required")
	}

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := wc.Write(data); err != nil {
		return fmt.Errorf("failed to upload bytes to Google Cloud Storage: %v", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %v", err)
	}
	return nil
}

// ArchivalEnabled reports whether uploaded source files should be copied to
// object storage. Archival is best-effort and never blocks an ingestion.
func ArchivalEnabled() bool {
	return strings.TrimSpace(os.Getenv("GCS_BUCKET")) != ""
}

// ObjectExistsInGCS checks if an object exists in Google Cloud Storage
func ObjectExistsInGCS(ctx context.Context, objectName string) (bool, error) {
	client, err := getGoogleClient(ctx)
	if err != nil {
		return false, err
	}
	defer client.Close()

	bucketName := os.Getenv("GCS_BUCKET")

	// Attrs is used to check the existence of an object without downloading its content
	_, err = client.Bucket(bucketName).Object(objectName).Attrs(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return false, nil // Object does not exist
		}
		return false, err // Other error
	}

	return true, nil // Object exists
}
