package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"calmwave-audio-service/internal/domain"
	"calmwave-audio-service/internal/domain/model"
	"calmwave-audio-service/internal/usecase"
)

// maxUploadBytes bounds multipart memory buffering; larger parts spill to
// temp files.
const maxUploadBytes = 64 << 20

type submissionResponse struct {
	UploadID          string `json:"upload_id"`
	Status            string `json:"status"`
	Message           string `json:"message"`
	ProcessedAudioURL string `json:"processed_audio_url,omitempty"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, status, message string) {
	writeJSON(w, code, errorResponse{Status: status, Message: message})
}

func (s *Server) toResponse(sub *model.Submission) submissionResponse {
	resp := submissionResponse{
		UploadID:  sub.ID,
		Status:    string(sub.Status),
		Message:   sub.Message,
		UpdatedAt: sub.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if name := usecase.FinalFilename(sub); name != "" {
		resp.ProcessedAudioURL = s.cfg.Server.BaseURL + "/processed/" + name
	}
	return resp
}

// pipelineCode maps a finished attempt's status to the HTTP code the upload
// endpoints answer with. Stage failures are reported on the record, so the
// response body always carries the status and message either way.
func pipelineCode(status model.SubmissionStatus) int {
	switch status {
	case model.StatusConversionFailed, model.StatusCallbackFileMissing:
		return http.StatusInternalServerError
	case model.StatusDispatchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

// readFilePart pulls one uploaded file out of a parsed multipart form.
func readFilePart(r *http.Request, field string) (data []byte, filename, contentType string, err error) {
	file, hdr, err := r.FormFile(field)
	if err != nil {
		return nil, "", "", err
	}
	defer file.Close()
	data, err = io.ReadAll(file)
	if err != nil {
		return nil, "", "", err
	}
	return data, hdr.Filename, hdr.Header.Get("Content-Type"), nil
}

// POST /api/v1/audio
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "expected multipart form: "+err.Error())
		return
	}
	data, filename, contentType, err := readFilePart(r, "audio_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "missing audio_file part")
		return
	}

	sub, err := s.service.Submit(r.Context(), filename, contentType, data)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, pipelineCode(sub.Status), s.toResponse(sub))
}

type chunkResponse struct {
	SessionID   string `json:"session_id"`
	ChunkNumber int    `json:"chunk_number"`
}

// POST /api/v1/audio/chunks
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "expected multipart form: "+err.Error())
		return
	}
	seq, err := strconv.Atoi(r.FormValue("chunk_number"))
	if err != nil || seq < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "chunk_number must be a non-negative integer")
		return
	}
	data, filename, contentType, err := readFilePart(r, "audio_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "missing audio_file part")
		return
	}

	id, err := s.service.AppendChunk(r.Context(), r.FormValue("session_id"), seq, filename, contentType, data)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chunkResponse{SessionID: id, ChunkNumber: seq})
}

// POST /api/v1/audio/chunks/{id}/complete
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	sub, err := s.service.CompleteChunks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, pipelineCode(sub.Status), s.toResponse(sub))
}

// POST /api/v1/audio/callback handles the denoise service posting its result
// back. A form field `error` marks a failed run; otherwise the denoised bytes
// arrive in the audio_file part.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "expected multipart form: "+err.Error())
		return
	}
	id := r.FormValue("upload_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "upload_id is required")
		return
	}

	if msg := r.FormValue("error"); msg != "" {
		sub, err := s.service.HandleCallbackFailure(r.Context(), id, msg)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.toResponse(sub))
		return
	}

	data, partName, _, err := readFilePart(r, "audio_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "missing audio_file part")
		return
	}
	filename := r.FormValue("filename")
	if filename == "" {
		filename = partName
	}

	sub, _, err := s.service.HandleCallback(r.Context(), id, filename, data)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, pipelineCode(sub.Status), s.toResponse(sub))
}

// GET /api/v1/audio
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	subs, err := s.service.ListDenoised(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]submissionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, s.toResponse(sub))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/v1/audio/{id}
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sub, err := s.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toResponse(sub))
}

// POST /api/v1/audio/{id}/redispatch
func (s *Server) handleRedispatch(w http.ResponseWriter, r *http.Request) {
	sub, err := s.service.Redispatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, pipelineCode(sub.Status), s.toResponse(sub))
}

// GET /processed/{filename}
func (s *Server) handleProcessed(w http.ResponseWriter, r *http.Request) {
	path, err := s.artifacts.FinalPath(chi.URLParam(r, "filename"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument):
			writeError(w, http.StatusBadRequest, "bad_request", "invalid filename")
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "no such processed file")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "could not resolve file")
		}
		return
	}
	http.ServeFile(w, r, path)
}

// DELETE /api/v1/audio/{id}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyAudio):
		writeError(w, http.StatusBadRequest, "empty_audio", "audio payload is empty")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNoChunks):
		writeError(w, http.StatusBadRequest, "no_chunks", "no fragments stored for this session")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "no such submission")
	case errors.Is(err, domain.ErrAlreadyProcessing):
		writeError(w, http.StatusConflict, "already_processing", "submission already has an active attempt")
	case errors.Is(err, domain.ErrStatusConflict):
		writeError(w, http.StatusConflict, "status_conflict", "submission state changed concurrently")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_state", "operation not allowed in the current state")
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
