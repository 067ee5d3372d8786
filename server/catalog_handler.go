package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"Bt1QMedia/core/apperr"
	"Bt1QMedia/logger"
	"Bt1QMedia/model"

	"github.com/gorilla/mux"
)

func pathID(r *http.Request, name string) int64 {
	// the route pattern only admits digits; overflow falls through to a lookup miss
	id, _ := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id
}

func (s *Server) listTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.catalog.ListTracks(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) listPodcastsHandler(w http.ResponseWriter, r *http.Request) {
	podcasts, err := s.catalog.ListPodcasts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, podcasts)
}

// searchHandler returns matching tracks followed by matching podcasts.
func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	results, err := s.catalog.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// streamHandler 返回媒体文件的原始字节，后端可 seek 时支持 Range
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	stream, err := s.catalog.StreamContent(r.Context(), mux.Vars(r)["type"], pathID(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer stream.Body.Close()

	w.Header().Set("Content-Type", stream.ContentType)
	if rs, ok := stream.Body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, stream.Name, time.Time{}, rs)
		return
	}
	if _, err := io.Copy(w, stream.Body); err != nil {
		logger.Warn("stream interrupted", logger.String("file", stream.Name), logger.ErrorField(err))
	}
}

// uploadHandler stores the multipart "file" part. The whole body is capped at MAX_CONTENT_LENGTH.
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxContentLength > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxContentLength)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, apperr.BadRequestf("No file provided"))
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, r, apperr.BadRequestf("No file provided"))
			return
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, r, err)
				return
			}
			writeError(w, r, &apperr.Error{Kind: apperr.BadRequest, Message: "Invalid multipart body", Err: err})
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		s.storeUpload(w, r, part)
		return
	}
}

func (s *Server) storeUpload(w http.ResponseWriter, r *http.Request, part *multipart.Part) {
	defer part.Close()

	res, err := s.catalog.Upload(r.Context(), part.FileName(), part)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.Info("[Upload] 文件上传成功",
		logger.String("file", res.FilePath),
		logger.Int64("userId", currentUser(r).ID))
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":   "File uploaded",
		"file_path": res.FilePath,
		"size":      res.Size,
		"metadata":  res.Metadata,
	})
}

// AddContentRequest creates a track, or a podcast when type is "podcast" or is_podcast is set.
type AddContentRequest struct {
	model.NewContent
	Type      string `json:"type"`
	IsPodcast bool   `json:"is_podcast"`
}

func (s *Server) addContentHandler(w http.ResponseWriter, r *http.Request) {
	var req AddContentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	isPodcast := req.IsPodcast
	if req.Type != "" {
		ct, ok := model.ParseContentType(req.Type)
		if !ok {
			writeError(w, r, apperr.BadRequestf("Invalid content type: %s", req.Type))
			return
		}
		isPodcast = ct == model.ContentPodcast
	}

	id, err := s.catalog.AddContent(r.Context(), req.NewContent, isPodcast)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ct := model.ContentTrack
	if isPodcast {
		ct = model.ContentPodcast
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Content added",
		"id":      id,
		"type":    ct,
	})
}

func (s *Server) deleteContentHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteContent(r.Context(), mux.Vars(r)["type"], pathID(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Content deleted")
}
