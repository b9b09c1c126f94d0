package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
	"github.com/rxtech-lab/cardify-mcp/internal/utils"
)

// UploadResult is the content address of a pinned object
type UploadResult struct {
	IpfsHash  string `json:"ipfsHash"`
	PinataURL string `json:"pinataUrl"`
	IpfsURI   string `json:"ipfsUri"`
}

// StorageService pins files and metadata documents to IPFS through Pinata
type StorageService interface {
	UploadFile(ctx context.Context, filename string, content io.Reader) (*UploadResult, error)
	UploadJSON(ctx context.Context, name string, document interface{}) (*UploadResult, error)
}

type pinataStorageService struct {
	jwt        string
	apiURL     string
	gatewayURL string
	httpClient *http.Client
}

func NewPinataStorageService(jwt, apiURL, gatewayURL string) StorageService {
	return &pinataStorageService{
		jwt:        jwt,
		apiURL:     strings.TrimSuffix(apiURL, "/"),
		gatewayURL: gatewayURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type pinataResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

func (s *pinataStorageService) UploadFile(ctx context.Context, filename string, content io.Reader) (*UploadResult, error) {
	if filename == "" {
		filename = "card-image.png"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	metadata, _ := json.Marshal(map[string]interface{}{
		"name": filename,
		"keyvalues": map[string]string{
			"type":      "cardify-card",
			"generated": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err := writer.WriteField("pinataMetadata", string(metadata)); err != nil {
		return nil, err
	}
	if err := writer.WriteField("pinataOptions", `{"cidVersion":1}`); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return s.pin(ctx, "/pinning/pinFileToIPFS", writer.FormDataContentType(), &body)
}

func (s *pinataStorageService) UploadJSON(ctx context.Context, name string, document interface{}) (*UploadResult, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"pinataContent":  document,
		"pinataMetadata": map[string]string{"name": name},
		"pinataOptions":  map[string]int{"cidVersion": 1},
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, apperrors.CodeInvalidRequest, "metadata is not valid JSON", err)
	}
	return s.pin(ctx, "/pinning/pinJSONToIPFS", "application/json", bytes.NewReader(payload))
}

func (s *pinataStorageService) pin(ctx context.Context, path, contentType string, body io.Reader) (*UploadResult, error) {
	if s.jwt == "" {
		return nil, apperrors.New(apperrors.KindPersistenceTransient, apperrors.CodeStorageUnavailable, "pinning service is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create pinning request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.jwt)
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindPersistenceTransient, apperrors.CodeStorageUnavailable, "pinning request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperrors.New(apperrors.KindPersistenceTransient, apperrors.CodeStorageUnavailable,
			fmt.Sprintf("pinning failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(text))))
	}

	var result pinataResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode pinning response: %w", err)
	}
	if result.IpfsHash == "" {
		return nil, apperrors.New(apperrors.KindPersistenceTransient, apperrors.CodeStorageUnavailable, "pinning response has no hash")
	}

	return &UploadResult{
		IpfsHash:  result.IpfsHash,
		PinataURL: utils.GatewayURL(s.gatewayURL, result.IpfsHash),
		IpfsURI:   "ipfs://" + result.IpfsHash,
	}, nil
}
