package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"portraitbot/internal/domain"
	"portraitbot/internal/provider"
	"portraitbot/internal/telegram"
)

// fakeSessionRepo mirrors the conditional-update semantics of the PostgreSQL
// repository in memory.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*domain.Session{}}
}

func cloneSession(s *domain.Session) *domain.Session {
	out := *s
	out.Images = append([]domain.SessionImage(nil), s.Images...)
	return &out
}

func (r *fakeSessionRepo) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sessions {
		if existing.ChatID == s.ChatID && existing.Status.Active() {
			return fmt.Errorf("active session already exists for chat %d", s.ChatID)
		}
	}
	now := time.Now().UTC()
	stored := cloneSession(s)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.sessions[s.ID] = stored
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneSession(s), nil
}

func (r *fakeSessionRepo) GetActiveByChat(_ context.Context, chatID int64) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ChatID == chatID && s.Status.Active() {
			return cloneSession(s), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeSessionRepo) AppendImage(_ context.Context, sessionID string, img domain.SessionImage) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if s.HasImage(img.MessageID) {
		return cloneSession(s), nil
	}
	if s.Status != domain.SessionStatusCollecting {
		return nil, domain.ErrSessionFrozen
	}
	if len(s.Images) >= domain.MaxSessionImages {
		return nil, domain.ErrTooManyImages
	}
	s.Images = append(s.Images, img)
	s.UpdatedAt = time.Now().UTC()
	return cloneSession(s), nil
}

func (r *fakeSessionRepo) ClaimForSubmission(_ context.Context, sessionID, jobID string) (*domain.Session, error) {
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
	s.UpdatedAt = time.Now().UTC()
	return cloneSession(s), nil
}

func (r *fakeSessionRepo) SetStatus(_ context.Context, sessionID string, status domain.SessionStatus, errMsg *string) (bool, error) {
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
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *fakeSessionRepo) SetNoticeMessage(_ context.Context, sessionID string, messageID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	s.NoticeMessageID = messageID
	return nil
}

func (r *fakeSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: map[string]*domain.Job{}}
}

func cloneJob(j *domain.Job) *domain.Job {
	out := *j
	if j.Output != nil {
		o := *j.Output
		out.Output = &o
	}
	return &out
}

func (r *fakeJobRepo) Create(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	now := time.Now().UTC()
	stored := cloneJob(job)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.jobs[job.ID] = stored
	return nil
}

func (r *fakeJobRepo) GetByID(_ context.Context, id string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(j), nil
}

func (r *fakeJobRepo) MarkRunning(_ context.Context, id, providerJobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status != domain.JobStatusPending {
		return nil
	}
	j.Status = domain.JobStatusRunning
	j.ProviderJobID = providerJobID
	j.Attempts++
	return nil
}

func (r *fakeJobRepo) MarkSuccess(_ context.Context, id, resultPath string, output domain.JobOutput) (bool, error) {
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

func (r *fakeJobRepo) MarkFailed(_ context.Context, id, errMsg string) (bool, error) {
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

func (r *fakeJobRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

type sentMessage struct {
	chatID int64
	text   string
	markup *telegram.InlineKeyboardMarkup
}

type sentPhoto struct {
	chatID  int64
	url     string
	caption string
}

type editedText struct {
	chatID    int64
	messageID int64
	text      string
}

// fakeTransport records outbound chat calls and serves downloads from memory.
type fakeTransport struct {
	mu               sync.Mutex
	messages         []sentMessage
	photos           []sentPhoto
	edits            []editedText
	clearedKeyboards []int64
	nextMsgID        int64
	downloads        map[string][]byte
	downloadErr      error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{downloads: map[string][]byte{}}
}

func (t *fakeTransport) SendMessage(_ context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) (*telegram.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextMsgID++
	t.messages = append(t.messages, sentMessage{chatID: chatID, text: text, markup: markup})
	return &telegram.Message{MessageID: t.nextMsgID, Chat: telegram.Chat{ID: chatID}, Text: text}, nil
}

func (t *fakeTransport) SendPhoto(_ context.Context, chatID int64, photoURL, caption string) (*telegram.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextMsgID++
	t.photos = append(t.photos, sentPhoto{chatID: chatID, url: photoURL, caption: caption})
	return &telegram.Message{MessageID: t.nextMsgID, Chat: telegram.Chat{ID: chatID}}, nil
}

func (t *fakeTransport) EditMessageText(_ context.Context, chatID, messageID int64, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.edits = append(t.edits, editedText{chatID: chatID, messageID: messageID, text: text})
	return nil
}

func (t *fakeTransport) EditMessageReplyMarkup(_ context.Context, _ int64, messageID int64, markup *telegram.InlineKeyboardMarkup) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if markup == nil {
		t.clearedKeyboards = append(t.clearedKeyboards, messageID)
	}
	return nil
}

func (t *fakeTransport) AnswerCallbackQuery(context.Context, string) error {
	return nil
}

func (t *fakeTransport) DownloadByFileID(_ context.Context, fileID string) ([]byte, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.downloadErr != nil {
		return nil, "", t.downloadErr
	}
	if data, ok := t.downloads[fileID]; ok {
		return data, "photos/" + fileID + ".jpg", nil
	}
	return []byte("jpegbytes"), "photos/" + fileID + ".jpg", nil
}

func (t *fakeTransport) messageCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// fakeStore is an in-memory object store.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Write(_ context.Context, key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return key, nil
}

func (s *fakeStore) Read(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeStore) SignedURL(key string, _ time.Duration) (string, error) {
	return "https://store.test/" + key, nil
}

func (s *fakeStore) Bucket() string { return "test-bucket" }

// fakeSubmitter records provider submissions.
type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []provider.SubmitRequest
	err       error
}

func (f *fakeSubmitter) Submit(_ context.Context, req provider.SubmitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.submitted = append(f.submitted, req)
	return fmt.Sprintf("task-%d", len(f.submitted)), nil
}

func (f *fakeSubmitter) submissionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}
