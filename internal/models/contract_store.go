package models

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	storage_go "github.com/supabase-community/storage-go"
)

// ContractStore keeps the object storage copy of signed contracts.
type ContractStore interface {
	UploadContract(ctx context.Context, requestID uuid.UUID, file *ContractFile) (string, error)
	ContractURL(ctx context.Context, objectPath string) (string, error)
}

const contractURLTTL = 300

// UploadContract returns the object path inside the contract bucket.
func (su *SupabaseRepo) UploadContract(ctx context.Context, requestID uuid.UUID, file *ContractFile) (string, error) {
	name := path.Base(strings.ReplaceAll(file.Name, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		name = "vertrag.pdf"
	}
	objectPath := path.Join(requestID.String(), name)
	contentType := file.MimeType
	upsert := true

	_, err := withContext(ctx, func() (storage_go.FileUploadResponse, error) {
		return su.supabaseClient.Storage.UploadFile(su.contractBucket, objectPath, bytes.NewReader(file.Data), storage_go.FileOptions{
			ContentType: &contentType,
			Upsert:      &upsert,
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload contract: %w", err)
	}
	return objectPath, nil
}

// ContractURL signs a short-lived download link; contracts are never public.
func (su *SupabaseRepo) ContractURL(ctx context.Context, objectPath string) (string, error) {
	res, err := withContext(ctx, func() (storage_go.SignedUrlResponse, error) {
		return su.supabaseClient.Storage.CreateSignedUrl(su.contractBucket, objectPath, contractURLTTL)
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign contract url: %w", err)
	}
	return res.SignedURL, nil
}
