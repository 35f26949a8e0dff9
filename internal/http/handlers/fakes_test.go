package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"portraitbot/internal/bot"
	"portraitbot/internal/domain"
	"portraitbot/internal/infra"
	"portraitbot/internal/provider"
	"portraitbot/internal/telegram"
)

// memUpdates is an in-memory idempotency ledger.
type memUpdates struct {
	mu      sync.Mutex
	seen    map[int64]bool
	seenErr error
}

func newMemUpdates() *memUpdates {
	return &memUpdates{seen: map[int64]bool{}}
}

func (r *memUpdates) Seen(_ context.Context, updateID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seenErr != nil {
		return false, r.seenErr
	}
	return r.seen[updateID], nil
}

func (r *memUpdates) Mark(_ context.Context, updateID, _ int64, _ domain.UpdateKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[updateID] = true
	return nil
}

func (r *memUpdates) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[string]*domain.Session{}}
}

func (r *memSessions) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *memSessions) GetByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSessions) GetActiveByChat(_ context.Context, chatID int64) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ChatID == chatID && s.Status.Active() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memSessions) AppendImage(_ context.Context, sessionID string, img domain.SessionImage) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !s.HasImage(img.MessageID) {
		s.Images = append(s.Images, img)
	}
	cp := *s
	return &cp, nil
}

func (r *memSessions) ClaimForSubmission(_ context.Context, sessionID, jobID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	if s.Status != domain.SessionStatusCollecting || s.JobID != "" {
		return nil, nil
	}
	s.Status = domain.SessionStatusProcessing
	s.JobID = jobID
	cp := *s
	return &cp, nil
}

func (r *memSessions) SetStatus(_ context.Context, sessionID string, status domain.SessionStatus, errMsg *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return false, nil
	}
	if !s.Status.Active() {
		return false, nil
	}
	s.Status = status
	if errMsg != nil {
		s.ErrorMessage = *errMsg
	}
	return true, nil
}

func (r *memSessions) SetNoticeMessage(_ context.Context, sessionID string, messageID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	s.NoticeMessageID = messageID
	return nil
}

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: map[string]*domain.Job{}}
}

func (r *memJobs) Create(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *memJobs) GetByID(_ context.Context, id string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memJobs) MarkRunning(_ context.Context, id, providerJobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status == domain.JobStatusPending {
		j.Status = domain.JobStatusRunning
		j.ProviderJobID = providerJobID
	}
	return nil
}

func (r *memJobs) MarkSuccess(_ context.Context, id, resultPath string, output domain.JobOutput) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if j.Status.Terminal() {
		return false, nil
	}
	j.Status = domain.JobStatusSuccess
	j.ResultPath = resultPath
	j.Output = &output
	return true, nil
}

func (r *memJobs) MarkFailed(_ context.Context, id, errMsg string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if j.Status.Terminal() {
		return false, nil
	}
	j.Status = domain.JobStatusFailed
	j.ErrorMessage = errMsg
	return true, nil
}

// memTransport records outbound chat calls.
type memTransport struct {
	mu       sync.Mutex
	messages []string
	photos   []string
	nextID   int64
}

func (t *memTransport) SendMessage(_ context.Context, chatID int64, text string, _ *telegram.InlineKeyboardMarkup) (*telegram.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	t.messages = append(t.messages, text)
	return &telegram.Message{MessageID: t.nextID, Chat: telegram.Chat{ID: chatID}, Text: text}, nil
}

func (t *memTransport) SendPhoto(_ context.Context, chatID int64, photoURL, _ string) (*telegram.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	t.photos = append(t.photos, photoURL)
	return &telegram.Message{MessageID: t.nextID, Chat: telegram.Chat{ID: chatID}}, nil
}

func (t *memTransport) EditMessageText(context.Context, int64, int64, string) error { return nil }

func (t *memTransport) EditMessageReplyMarkup(context.Context, int64, int64, *telegram.InlineKeyboardMarkup) error {
	return nil
}

func (t *memTransport) AnswerCallbackQuery(context.Context, string) error { return nil }

func (t *memTransport) DownloadByFileID(_ context.Context, fileID string) ([]byte, string, error) {
	return []byte("jpegbytes"), "photos/" + fileID + ".jpg", nil
}

func (t *memTransport) messageCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// memStore is an in-memory object store.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Write(_ context.Context, key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return key, nil
}

func (s *memStore) Read(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memStore) SignedURL(key string, _ time.Duration) (string, error) {
	return "https://store.test/" + key, nil
}

func (s *memStore) Bucket() string { return "test-bucket" }

type memSubmitter struct {
	mu    sync.Mutex
	count int
}

func (m *memSubmitter) Submit(context.Context, provider.SubmitRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	return "task-1", nil
}

// testApp wires an App over in-memory dependencies.
type testApp struct {
	app       *App
	updates   *memUpdates
	sessions  *memSessions
	jobs      *memJobs
	transport *memTransport
	store     *memStore
}

func newTestApp(cfg *infra.Config) *testApp {
	f := &testApp{
		updates:   newMemUpdates(),
		sessions:  newMemSessions(),
		jobs:      newMemJobs(),
		transport: &memTransport{},
		store:     newMemStore(),
	}
	logger := zerolog.Nop()
	controller := bot.NewController(f.sessions, f.jobs, f.transport, f.store, &memSubmitter{}, logger, bot.Config{
		CallbackBaseURL: "https://bot.test",
	})
	reconciler := bot.NewReconciler(f.jobs, f.sessions, f.transport, f.store, nil, logger, time.Hour)
	f.app = &App{
		Cfg:        cfg,
		Logger:     logger,
		Updates:    f.updates,
		Sessions:   f.sessions,
		Jobs:       f.jobs,
		Controller: controller,
		Reconciler: reconciler,
	}
	return f
}
