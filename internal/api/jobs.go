package api

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ovoronkov/reelcut/internal/domain/moments"
	"github.com/ovoronkov/reelcut/internal/types"
	"github.com/ovoronkov/reelcut/internal/usecase"
)

type processRequest struct {
	Input     string                 `json:"input"`
	Count     int                    `json:"count"`
	PresetSec float64                `json:"preset_sec"`
	Style     types.CaptionStyleSpec `json:"style"`
	Mode      string                 `json:"mode"`
	Language  string                 `json:"language"`
	Romanize  bool                   `json:"romanize"`
	Watermark string                 `json:"watermark"`
	StartSec  float64                `json:"start_sec"`
	EndSec    float64                `json:"end_sec"`
}

// handleProcess runs a whole job synchronously and returns the partial
// success result. The server's write timeout is sized for this.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Input == "" {
		WriteError(w, http.StatusBadRequest, "input is required (local path or URL)")
		return
	}
	mode, ok := parseMode(req.Mode)
	if !ok {
		WriteError(w, http.StatusBadRequest, "mode must be one of auto, text, energy")
		return
	}

	res, err := s.d.Jobs.Run(r.Context(), usecase.Input{
		Source:    req.Input,
		Count:     req.Count,
		Preset:    seconds(req.PresetSec),
		Style:     req.Style,
		Mode:      mode,
		Language:  req.Language,
		Romanize:  req.Romanize,
		Watermark: req.Watermark,
		SubStart:  seconds(req.StartSec),
		SubEnd:    seconds(req.EndSec),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toJobResponse(res))
}

// Accepted upload containers. Anything else is rejected before the file is
// written anywhere.
var allowedUploadExt = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".webm": true, ".avi": true, ".m4v": true,
}

type uploadResponse struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// handleUpload stores a multipart "file" under a fresh name in the upload
// directory. The client then submits the returned path to /api/process.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, `multipart field "file" is required`)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedUploadExt[ext] {
		WriteError(w, http.StatusBadRequest, "unsupported video type "+ext)
		return
	}

	name := strings.ReplaceAll(uuid.NewString(), "-", "")[:12] + ext
	dst := filepath.Join(s.d.Cfg.UploadDir, name)
	out, err := os.Create(dst)
	if err != nil {
		s.log.Error().Err(err).Msg("creating upload file failed")
		WriteError(w, http.StatusInternalServerError, "storing upload failed")
		return
	}
	size, err := io.Copy(out, file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		s.log.Error().Err(err).Msg("writing upload failed")
		WriteError(w, http.StatusInternalServerError, "storing upload failed")
		return
	}

	s.log.Info().Str("file", name).Int64("size", size).Msg("upload stored")
	WriteJSON(w, http.StatusCreated, uploadResponse{Path: dst, Filename: name, Size: size})
}

type regenerateRequest struct {
	Style types.CaptionStyleSpec `json:"style"`
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req regenerateRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	clip, err := s.d.Jobs.Regenerate(r.Context(), key, req.Style)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toClipResponse(clip))
}

type shareRequest struct {
	AccessToken string `json:"access_token"`
	AccountID   string `json:"account_id"`
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req shareRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AccessToken == "" || req.AccountID == "" {
		WriteError(w, http.StatusBadRequest, "access_token and account_id are required")
		return
	}

	mediaID, err := s.d.Jobs.Share(r.Context(), key, req.AccessToken, req.AccountID)
	if err != nil {
		if errorIsNotFound(err) {
			writeDomainError(w, err)
			return
		}
		// Anything else is the upstream publisher misbehaving.
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"media_id": mediaID})
}

func parseMode(s string) (moments.Mode, bool) {
	switch moments.Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return moments.ModeAuto, true
	case moments.ModeAuto:
		return moments.ModeAuto, true
	case moments.ModeText:
		return moments.ModeText, true
	case moments.ModeEnergy:
		return moments.ModeEnergy, true
	}
	return "", false
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
