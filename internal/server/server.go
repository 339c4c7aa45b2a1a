// Package server wires the web UI: scene input, script review and
// editing, audio synthesis, playback, and downloads. It is the only
// layer that translates raised errors into user-visible messages.
package server

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"scenetalk/internal/assembler"
	"scenetalk/internal/background"
	"scenetalk/internal/dialogue"
	"scenetalk/internal/tts"
)

const maxUploadBytes = 32 << 20

// Server handles HTTP routing for scenetalk.
type Server struct {
	logger        *slog.Logger
	scripts       *dialogue.Service
	synth         tts.Synthesizer
	backgrounds   *background.Provider
	assemblerOpts assembler.Options
	sessions      *SessionStore
	templates     *template.Template
	staticFS      http.FileSystem
	engineName    string
}

// Options carry the pieces the server needs beyond its collaborators.
type Options struct {
	AssemblerOptions assembler.Options
	EngineName       string
}

// NewServer constructs the server and its chi router.
func NewServer(
	logger *slog.Logger,
	scripts *dialogue.Service,
	synth tts.Synthesizer,
	backgrounds *background.Provider,
	sessions *SessionStore,
	templates *template.Template,
	staticFS http.FileSystem,
	opts Options,
) (*Server, http.Handler) {
	srv := &Server{
		logger:        logger,
		scripts:       scripts,
		synth:         synth,
		backgrounds:   backgrounds,
		assemblerOpts: opts.AssemblerOptions,
		sessions:      sessions,
		templates:     templates,
		staticFS:      staticFS,
		engineName:    opts.EngineName,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(srv.staticFS)))

	r.Get("/", srv.handleIndex)
	r.Post("/scripts", srv.handleGenerate)
	r.Get("/sessions/{id}", srv.handleSession)
	r.Post("/sessions/{id}/script", srv.handleUpdateScript)
	r.Post("/sessions/{id}/audio", srv.handleSynthesize)
	r.Get("/sessions/{id}/files/{key}", srv.handleAudioFile)
	r.Get("/sessions/{id}/download", srv.handleDownloadCombined)
	r.Get("/sessions/{id}/download/lines", srv.handleDownloadLines)
	r.Post("/sessions/{id}/delete", srv.handleDelete)

	return srv, r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderIndex(w, "")
}

func (s *Server) renderIndex(w http.ResponseWriter, flash string) {
	payload := map[string]any{
		"Sessions": s.sessions.List(),
		"Engine":   s.engineName,
		"Flash":    flash,
	}
	s.renderPage(w, "scenetalk — listening material generator", "index.html", payload)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.clientError(w, http.StatusBadRequest, "invalid form data")
		return
	}

	scene := strings.TrimSpace(r.FormValue("scene"))
	doc, err := s.scripts.GenerateScript(r.Context(), scene)
	if err != nil {
		s.logger.Warn("script generation failed", slog.String("error", err.Error()))
		s.renderIndex(w, userMessage(err))
		return
	}

	sess := s.sessions.Create(scene, doc)
	http.Redirect(w, r, "/sessions/"+sess.ID.String(), http.StatusSeeOther)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	flash := sess.Flash
	sess.Flash = ""

	payload := map[string]any{
		"Session":    sess,
		"Presets":    background.PresetNames(),
		"VoiceHints": []string{"", tts.GenderFemale, tts.GenderMale},
		"Flash":      flash,
		"LineKeys":   sortedLineKeys(sess.Result),
	}
	s.renderPage(w, "scenetalk — "+sess.Document.Title, "review.html", payload)
}

func (s *Server) handleUpdateScript(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		s.clientError(w, http.StatusBadRequest, "invalid form data")
		return
	}

	doc := documentFromForm(r)
	action := r.FormValue("action")

	switch {
	case action == "add":
		doc.Conversation = append(doc.Conversation, dialogue.Line{})
	case strings.HasPrefix(action, "remove-"):
		var idx int
		if _, err := fmt.Sscanf(action, "remove-%d", &idx); err == nil && idx >= 0 && idx < len(doc.Conversation) {
			doc.Conversation = append(doc.Conversation[:idx], doc.Conversation[idx+1:]...)
		}
	default:
		if !dialogue.Validate(doc) {
			sess.Flash = "The script is incomplete: every line needs a speaker and text, and title and situation are required."
		}
	}

	sess.Document = doc
	http.Redirect(w, r, "/sessions/"+sess.ID.String(), http.StatusSeeOther)
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.clientError(w, http.StatusBadRequest, "invalid form data")
		return
	}

	if sess.Assembler == nil {
		asm, err := assembler.New(s.logger, s.synth, s.backgrounds, s.assemblerOpts)
		if err != nil {
			s.serverError(w, err)
			return
		}
		sess.Assembler = asm
	}

	src, err := s.backgroundSource(r, sess)
	if err != nil {
		sess.Flash = userMessage(err)
		http.Redirect(w, r, "/sessions/"+sess.ID.String(), http.StatusSeeOther)
		return
	}

	result, err := sess.Assembler.Assemble(r.Context(), sess.Document.Conversation, assembler.AssembleOptions{
		Background: src,
	})
	if err != nil {
		s.logger.Warn("assembly failed",
			slog.String("session", sess.ID.String()),
			slog.String("error", err.Error()),
		)
		sess.Flash = userMessage(err)
		http.Redirect(w, r, "/sessions/"+sess.ID.String(), http.StatusSeeOther)
		return
	}

	sess.Result = &result
	http.Redirect(w, r, "/sessions/"+sess.ID.String(), http.StatusSeeOther)
}

// backgroundSource resolves the form's background choice. Uploaded files
// are copied into the session's working directory before decoding.
func (s *Server) backgroundSource(r *http.Request, sess *Session) (background.Source, error) {
	switch r.FormValue("background") {
	case "preset":
		return background.Preset(r.FormValue("preset")), nil
	case "upload":
		file, header, err := r.FormFile("background_file")
		if err != nil {
			return background.Source{}, fmt.Errorf("%w: a background file is required", dialogue.ErrInvalidInput)
		}
		defer file.Close()

		ext := strings.ToLower(filepath.Ext(header.Filename))
		if ext != ".wav" && ext != ".mp3" {
			return background.Source{}, fmt.Errorf("%w: background files must be WAV or MP3", dialogue.ErrInvalidInput)
		}

		dst := filepath.Join(sess.Assembler.Workdir(), "background"+ext)
		out, err := os.Create(dst)
		if err != nil {
			return background.Source{}, fmt.Errorf("store background file: %w", err)
		}
		if _, err := io.Copy(out, file); err != nil {
			out.Close()
			return background.Source{}, fmt.Errorf("store background file: %w", err)
		}
		if err := out.Close(); err != nil {
			return background.Source{}, fmt.Errorf("store background file: %w", err)
		}
		return background.File(dst), nil
	default:
		return background.None(), nil
	}
}

func (s *Server) handleAudioFile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if sess.Result == nil {
		s.clientError(w, http.StatusNotFound, "no audio generated yet")
		return
	}

	key := chi.URLParam(r, "key")
	path, ok := resolveResultFile(sess.Result, key)
	if !ok {
		s.clientError(w, http.StatusNotFound, "unknown audio file")
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleDownloadCombined(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if sess.Result == nil {
		s.clientError(w, http.StatusNotFound, "no audio generated yet")
		return
	}

	filename := fmt.Sprintf("conversation_%s.wav", sanitizeFilename(sess.Document.Title))
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	http.ServeFile(w, r, sess.Result.Combined)
}

func (s *Server) handleDownloadLines(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if sess.Result == nil {
		s.clientError(w, http.StatusNotFound, "no audio generated yet")
		return
	}

	var zipBuf bytes.Buffer
	zipWriter := zip.NewWriter(&zipBuf)

	keys := sortedLineKeys(sess.Result)
	for _, key := range keys {
		data, err := os.ReadFile(sess.Result.Individual[key])
		if err != nil {
			s.logger.Warn("skipping unreadable line file",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			continue
		}
		entry, err := zipWriter.Create(sanitizeFilename(key) + ".wav")
		if err != nil {
			s.serverError(w, fmt.Errorf("create zip entry: %w", err))
			return
		}
		if _, err := entry.Write(data); err != nil {
			s.serverError(w, fmt.Errorf("write zip entry: %w", err))
			return
		}
	}
	if err := zipWriter.Close(); err != nil {
		s.serverError(w, fmt.Errorf("close zip: %w", err))
		return
	}

	filename := fmt.Sprintf("lines_%s.zip", sanitizeFilename(sess.Document.Title))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.Write(zipBuf.Bytes())
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if err := s.sessions.Delete(sess.ID); err != nil {
		s.serverError(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.clientError(w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		s.clientError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

// documentFromForm rebuilds the document from the edit form's parallel
// line fields.
func documentFromForm(r *http.Request) dialogue.Document {
	speakers := r.Form["speaker"]
	texts := r.Form["text"]
	hints := r.Form["voice_hint"]

	lines := make([]dialogue.Line, 0, len(speakers))
	for i := range speakers {
		line := dialogue.Line{Speaker: speakers[i]}
		if i < len(texts) {
			line.Text = texts[i]
		}
		if i < len(hints) {
			line.VoiceHint = hints[i]
		}
		lines = append(lines, line)
	}

	return dialogue.Document{
		Title:        r.FormValue("title"),
		Situation:    r.FormValue("situation"),
		Conversation: lines,
	}
}

// resolveResultFile maps a URL key onto a file inside the session's
// working directory. Only files referenced by the result are served.
func resolveResultFile(result *assembler.Result, key string) (string, bool) {
	if key == "combined" {
		return result.Combined, true
	}
	path, ok := result.Individual[key]
	return path, ok
}

func sortedLineKeys(result *assembler.Result) []string {
	if result == nil {
		return nil
	}
	keys := make([]string, 0, len(result.Individual))
	for key := range result.Individual {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return lineIndex(keys[i]) < lineIndex(keys[j])
	})
	return keys
}

// lineIndex extracts the numeric suffix of a "<speaker>_<index>" key.
func lineIndex(key string) int {
	pos := strings.LastIndex(key, "_")
	if pos == -1 {
		return 0
	}
	var idx int
	fmt.Sscanf(key[pos+1:], "%d", &idx)
	return idx
}

// userMessage is the single place raised errors become user-facing
// text.
func userMessage(err error) string {
	var synthErr *tts.SynthesisError
	switch {
	case errors.As(err, &synthErr) && synthErr.RateLimited:
		return "The speech service is busy right now. Please wait a few minutes and try again."
	case errors.As(err, &synthErr):
		return "Speech synthesis failed: " + synthErr.Reason
	case errors.Is(err, dialogue.ErrConfiguration):
		return "Credentials are missing or invalid. Enter a valid API key (and region for Azure) and try again."
	case errors.Is(err, dialogue.ErrMalformedResponse):
		return "The generated script could not be read. Please try generating it again."
	case errors.Is(err, dialogue.ErrEmptyConversation):
		return "Every line of the conversation is empty. Add some text before generating audio."
	case errors.Is(err, dialogue.ErrInvalidInput):
		return err.Error()
	default:
		return err.Error()
	}
}

func (s *Server) renderPage(w http.ResponseWriter, title, contentTemplate string, payload any) {
	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, contentTemplate, payload); err != nil {
		s.logger.Error("render template failed", slog.String("template", contentTemplate), slog.String("error", err.Error()))
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	data := map[string]any{
		"Title": title,
		"Body":  template.HTML(body.String()),
		"Year":  time.Now().Year(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "base.html", data); err != nil {
		s.logger.Error("render template failed", slog.String("template", "base.html"), slog.String("error", err.Error()))
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.logger.Error("request error", slog.String("error", err.Error()))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func (s *Server) clientError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}

func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		" ", "_",
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "-",
		"?", "-",
		`"`, "-",
		"<", "-",
		">", "-",
		"|", "-",
	)
	name = replacer.Replace(name)
	if name == "" {
		name = "untitled"
	}
	if len(name) > 50 {
		name = name[:50]
	}
	return name
}
