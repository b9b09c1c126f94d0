package api

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
)

func (s *APIServer) storageAvailable() error {
	if s.deps.Storage == nil {
		return apperrors.New(apperrors.KindPersistenceTransient, apperrors.CodeStorageUnavailable, "content storage is not configured")
	}
	return nil
}

// handleUploadFile pins the multipart field "file"
func (s *APIServer) handleUploadFile(c *fiber.Ctx) error {
	if err := s.storageAvailable(); err != nil {
		return writeError(c, err)
	}

	header, err := c.FormFile("file")
	if err != nil {
		return writeError(c, badRequest("file is required"))
	}
	file, err := header.Open()
	if err != nil {
		return writeError(c, badRequest("failed to read uploaded file"))
	}
	defer file.Close()

	result, err := s.deps.Storage.UploadFile(c.UserContext(), header.Filename, file)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"ipfsHash":  result.IpfsHash,
		"pinataUrl": result.PinataURL,
		"ipfsUri":   result.IpfsURI,
	})
}

type metadataUpload struct {
	Name     string          `json:"name"`
	Metadata json.RawMessage `json:"metadata"`
}

// handleUploadMetadata pins a JSON metadata document
func (s *APIServer) handleUploadMetadata(c *fiber.Ctx) error {
	if err := s.storageAvailable(); err != nil {
		return writeError(c, err)
	}

	var req metadataUpload
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, badRequest("invalid request body"))
	}
	if len(req.Metadata) == 0 || !json.Valid(req.Metadata) {
		return writeError(c, badRequest("metadata must be a JSON document"))
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "metadata.json"
	}

	result, err := s.deps.Storage.UploadJSON(c.UserContext(), name, req.Metadata)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"ipfsHash":  result.IpfsHash,
		"pinataUrl": result.PinataURL,
		"ipfsUri":   result.IpfsURI,
	})
}
