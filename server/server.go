package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"coze_note_generator/generator"
)

// 一次生成包含重试退避，最坏情况是低几十秒，给足余量。
const generateTimeout = 3 * time.Minute

type Server struct {
	newSession func(id string, form generator.Form) *generator.Session
	store      *sessionStore
	logger     *zap.SugaredLogger
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*generator.Session
}

func newStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*generator.Session)}
}

func (s *sessionStore) set(id string, sess *generator.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = sess
}

func (s *sessionStore) get(id string) (*generator.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func New(agent *generator.Agent, logger *zap.SugaredLogger) (*Server, error) {
	if agent == nil {
		return nil, errors.New("generator agent required")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Server{
		newSession: func(id string, form generator.Form) *generator.Session {
			return generator.NewSession(id, form, agent)
		},
		store:  newStore(),
		logger: logger,
	}, nil
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/sessions", s.handleSessionCreate).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}", s.handleSessionGet).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}/content", s.handleRegenerateContent).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/images", s.handleRegenerateImages).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/archive", s.handleArchive).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(staticHandler())

	handler := cors.AllowAll().Handler(r)
	return s.logMiddleware(handler)
}

// --- Handlers ---

type sessionResp struct {
	SessionID string          `json:"session_id"`
	State     generator.State `json:"state"`
	HTML      string          `json:"html,omitempty"`
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	form, err := parseForm(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// 超过上限直接拒绝，不做任何上传。
	if err := form.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	sess := s.newSession(id, form)
	s.store.set(id, sess)

	ctx, cancel := context.WithTimeout(r.Context(), generateTimeout)
	defer cancel()
	err = sess.Generate(ctx)
	if err != nil {
		s.logger.Warnw("generation failed", "session", id, "err", err)
	}
	s.writeSession(w, statusFor(err), id, sess)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.store.get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	s.writeSession(w, http.StatusOK, sess.ID, sess)
}

func (s *Server) handleRegenerateContent(w http.ResponseWriter, r *http.Request) {
	s.regenerate(w, r, (*generator.Session).RegenerateContent)
}

func (s *Server) handleRegenerateImages(w http.ResponseWriter, r *http.Request) {
	s.regenerate(w, r, (*generator.Session).RegenerateImages)
}

func (s *Server) regenerate(w http.ResponseWriter, r *http.Request, run func(*generator.Session, context.Context) error) {
	sess, ok := s.store.get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), generateTimeout)
	defer cancel()
	err := run(sess, ctx)
	if err != nil {
		if errors.Is(err, generator.ErrBusy) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		s.logger.Warnw("regeneration failed", "session", sess.ID, "err", err)
	}
	s.writeSession(w, statusFor(err), sess.ID, sess)
}

// statusFor maps a generation run's outcome to a response status. Expected
// domain outcomes stay 200 with the message carried in the session state;
// upstream failures answer 502 so callers can tell the service itself is
// degraded. The state body is written either way.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, generator.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, generator.ErrNoImages),
		errors.Is(err, generator.ErrNoImagesProduced),
		errors.Is(err, generator.ErrContentTypeRequired),
		errors.Is(err, generator.ErrTooManyImages):
		return http.StatusOK
	default:
		// coze.AuthError, coze.RequestError, exhausted retries, transport
		// errors and failed uploads all mean the upstream let us down.
		return http.StatusBadGateway
	}
}

// parseForm reads the multipart submission: text fields plus up to the
// allowed number of image files.
func parseForm(r *http.Request) (generator.Form, error) {
	// 32 MiB in memory; larger parts spill to disk.
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return generator.Form{}, err
	}
	form := generator.Form{
		ContentType:    generator.ContentType(r.FormValue("content_type")),
		ProductInfo:    r.FormValue("product_info"),
		SellingPoints:  r.FormValue("selling_points"),
		TargetAudience: r.FormValue("target_audience"),
	}
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["images"] {
			f, err := header.Open()
			if err != nil {
				return generator.Form{}, err
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return generator.Form{}, err
			}
			form.Images = append(form.Images, generator.Image{Name: header.Filename, Data: data})
		}
	}
	return form, nil
}

func (s *Server) writeSession(w http.ResponseWriter, status int, id string, sess *generator.Session) {
	state := sess.Snapshot()
	writeJSON(w, status, sessionResp{
		SessionID: id,
		State:     state,
		HTML:      renderBody(state.Body),
	})
}

// renderBody converts the note body markdown to HTML for the preview pane.
func renderBody(body string) string {
	if body == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(body), &buf); err != nil {
		return ""
	}
	return buf.String()
}
