package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"webdsl/internal/model"
	"webdsl/internal/repository"
	"webdsl/internal/storage"
)

var (
	ErrIDRequired    = errors.New("deployment uid is required")
	ErrUserRequired  = errors.New("user_id is required")
	ErrModelRequired = errors.New("model_str is required")
	ErrNotFound      = errors.New("deployment not found")
	ErrForbidden     = errors.New("user not authorized for this deployment")
	ErrInvalidStatus = errors.New("invalid deployment status")
	ErrModelNotFound = errors.New("model source not found")
)

// CreateDeploymentInput is a request to deploy a DSL model.
type CreateDeploymentInput struct {
	ModelStr string
	IsPublic bool
	UserID   string
}

// CreateDeploymentResult is returned once, right after creation. It is the only
// place the generated application password appears.
type CreateDeploymentResult struct {
	UID      string `json:"deployment_uid"`
	Status   string `json:"status"`
	Username string `json:"username"`
	Password string `json:"password"`
	URL      string `json:"url"`
	Message  string `json:"message"`
}

// DeploymentListResult is the service-level DTO for paginated deployments.
type DeploymentListResult struct {
	Items []model.Deployment `json:"data"`
	Total int                `json:"total"`
}

// StatusReport is sent by the deploy agent as a deployment progresses.
type StatusReport struct {
	Status       string  `json:"status"`
	URL          *string `json:"url,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

// KillResult is the outcome of one deployment in KillAll.
type KillResult struct {
	UID    string `json:"deployment_uid"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// KillAllResult summarizes KillAll.
type KillAllResult struct {
	Message string       `json:"message"`
	Results []KillResult `json:"results,omitempty"`
}

// DeploymentService defines the use cases of the deployment registry.
type DeploymentService interface {
	// Create stores the model source, records a pending deployment and returns its
	// credentials. The record is not created if storing the model fails.
	Create(ctx context.Context, in CreateDeploymentInput) (*CreateDeploymentResult, error)

	// List returns deployments matching f, newest first.
	List(ctx context.Context, f repository.DeploymentFilter, limit, offset int) (*DeploymentListResult, error)

	// Get returns a single deployment by UID.
	Get(ctx context.Context, uid string) (*model.Deployment, error)

	// UpdateStatus records a deploy agent report.
	UpdateStatus(ctx context.Context, uid string, r StatusReport) (*model.Deployment, error)

	// Kill marks a deployment killed on behalf of its owner and returns a message.
	Kill(ctx context.Context, uid, userID string) (string, error)

	// KillAll kills every deployment of userID.
	KillAll(ctx context.Context, userID string) (*KillAllResult, error)

	// ModelURL returns a presigned download URL of the deployment's model source.
	ModelURL(ctx context.Context, uid string) (string, error)

	// OpenModel streams the deployment's model source from object storage. The caller
	// closes the reader.
	OpenModel(ctx context.Context, uid string) (io.ReadCloser, storage.ObjectInfo, error)

	// Delete removes the model source, then the record.
	Delete(ctx context.Context, uid string) error
}

// DeploymentOptions tunes the deployment service.
type DeploymentOptions struct {
	// PublicHost is the host generated applications are served from.
	PublicHost string
	// PresignExpiry bounds model download URLs.
	PresignExpiry time.Duration
}

type deploymentService struct {
	store storage.Storage
	repo  repository.DeploymentRepository
	opts  DeploymentOptions
	now   func() time.Time
}

// NewDeploymentService constructs a new DeploymentService.
func NewDeploymentService(store storage.Storage, repo repository.DeploymentRepository, opts DeploymentOptions) DeploymentService {
	if opts.PresignExpiry <= 0 {
		opts.PresignExpiry = 15 * time.Minute
	}
	if opts.PublicHost == "" {
		opts.PublicHost = "localhost"
	}
	return &deploymentService{store: store, repo: repo, opts: opts, now: time.Now}
}

func (s *deploymentService) appURL(uid string) string {
	return fmt.Sprintf("http://%s/apps/%s/", s.opts.PublicHost, uid)
}

func (s *deploymentService) Create(ctx context.Context, in CreateDeploymentInput) (*CreateDeploymentResult, error) {
	if strings.TrimSpace(in.ModelStr) == "" {
		return nil, ErrModelRequired
	}
	if in.UserID == "" {
		return nil, ErrUserRequired
	}

	uid := newUID()
	username, password := generateCredentials(uid, in.IsPublic)
	key := storage.ModelKey(uid)

	if _, err := s.store.Put(ctx, key, strings.NewReader(in.ModelStr), storage.PutObjectOptions{
		Size:        int64(len(in.ModelStr)),
		ContentType: storage.ModelContentType,
		Metadata:    map[string]string{"user-id": in.UserID, "deployment-uid": uid},
	}); err != nil {
		return nil, fmt.Errorf("upload model: %w", err)
	}

	now := s.now().UTC()
	d := &model.Deployment{
		UID:         uid,
		UserID:      in.UserID,
		Status:      model.StatusPending,
		URL:         s.appURL(uid),
		AppUsername: username,
		AppPassword: password,
		IsPublic:    in.IsPublic,
		ProjectName: "webapp-" + uid,
		ModelKey:    key,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.repo.Create(ctx, d); err != nil {
		// Rollback: delete the model from storage
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			return nil, fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}

	return &CreateDeploymentResult{
		UID:      uid,
		Status:   model.StatusPending,
		Username: username,
		Password: password,
		URL:      d.URL,
		Message:  "Deployment has been initiated and is running in the background.",
	}, nil
}

func (s *deploymentService) List(ctx context.Context, f repository.DeploymentFilter, limit, offset int) (*DeploymentListResult, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	res, err := s.repo.List(ctx, f, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &DeploymentListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *deploymentService) Get(ctx context.Context, uid string) (*model.Deployment, error) {
	if uid == "" {
		return nil, ErrIDRequired
	}
	d, err := s.repo.FindByUID(ctx, uid)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return d, nil
}

func (s *deploymentService) UpdateStatus(ctx context.Context, uid string, r StatusReport) (*model.Deployment, error) {
	if uid == "" {
		return nil, ErrIDRequired
	}
	if !model.ValidStatus(r.Status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, r.Status)
	}
	d, err := s.repo.UpdateStatus(ctx, uid, repository.StatusUpdate{
		Status:       r.Status,
		URL:          r.URL,
		ErrorMessage: r.ErrorMessage,
	})
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return d, nil
}

func (s *deploymentService) Kill(ctx context.Context, uid, userID string) (string, error) {
	if uid == "" {
		return "", ErrIDRequired
	}
	if userID == "" {
		return "", ErrUserRequired
	}
	d, err := s.repo.FindByUID(ctx, uid)
	if err != nil {
		return "", mapRepoErr(err)
	}
	return s.kill(ctx, d, userID)
}

func (s *deploymentService) kill(ctx context.Context, d *model.Deployment, userID string) (string, error) {
	if d.UserID != userID {
		return "", ErrForbidden
	}
	if d.Status == model.StatusKilled {
		return fmt.Sprintf("Deployment %s already killed.", d.UID), nil
	}
	if _, err := s.repo.UpdateStatus(ctx, d.UID, repository.StatusUpdate{Status: model.StatusKilled}); err != nil {
		return "", mapRepoErr(err)
	}
	return fmt.Sprintf("Deployment %s killed.", d.UID), nil
}

func (s *deploymentService) KillAll(ctx context.Context, userID string) (*KillAllResult, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	res, err := s.repo.List(ctx, repository.DeploymentFilter{UserID: userID}, repository.PageQuery{Limit: 1000})
	if err != nil {
		return nil, err
	}
	if len(res.Items) == 0 {
		return &KillAllResult{Message: fmt.Sprintf("No deployments for user %s.", userID)}, nil
	}

	out := &KillAllResult{Message: fmt.Sprintf("Kill all for user %s processed.", userID)}
	for i := range res.Items {
		d := &res.Items[i]
		if d.Status == model.StatusKilled {
			out.Results = append(out.Results, KillResult{UID: d.UID, Status: "skipped", Detail: "Already killed."})
			continue
		}
		msg, err := s.kill(ctx, d, userID)
		if err != nil {
			out.Results = append(out.Results, KillResult{UID: d.UID, Status: "failed", Detail: err.Error()})
			continue
		}
		out.Results = append(out.Results, KillResult{UID: d.UID, Status: "success", Detail: msg})
	}
	return out, nil
}

func (s *deploymentService) ModelURL(ctx context.Context, uid string) (string, error) {
	d, err := s.Get(ctx, uid)
	if err != nil {
		return "", err
	}
	return s.store.PresignGet(ctx, d.ModelKey, s.opts.PresignExpiry)
}

func (s *deploymentService) OpenModel(ctx context.Context, uid string) (io.ReadCloser, storage.ObjectInfo, error) {
	d, err := s.Get(ctx, uid)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	if d.ModelKey == "" {
		return nil, storage.ObjectInfo{}, ErrModelNotFound
	}
	rc, info, err := s.store.Get(ctx, d.ModelKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, storage.ObjectInfo{}, ErrModelNotFound
	}
	if err != nil {
		return nil, storage.ObjectInfo{}, fmt.Errorf("get model: %w", err)
	}
	return rc, info, nil
}

func (s *deploymentService) Delete(ctx context.Context, uid string) error {
	d, err := s.Get(ctx, uid)
	if err != nil {
		return err
	}
	// Delete from storage first; keep the row if that fails
	if d.ModelKey != "" {
		if err := s.store.Delete(ctx, d.ModelKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("delete storage: %w", err)
		}
	}
	return s.repo.Delete(ctx, uid)
}

func mapRepoErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func newUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// generateCredentials returns the basic auth pair of a private application.
// Public applications get none.
func generateCredentials(uid string, public bool) (string, string) {
	if public {
		return "", ""
	}
	return "user-" + uid, strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
