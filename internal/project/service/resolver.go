// Package service resolves messages to project aggregates.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"mailroom/internal/project/models"
	"mailroom/internal/project/store"
	id "mailroom/pkg/domain"
	dErrors "mailroom/pkg/domain-errors"
	"mailroom/pkg/platform/sentinel"
	"mailroom/pkg/requestcontext"
)

// Resolver attaches each message to exactly one project:
// recipient tag first, then exact extracted-name+sender match, then a new
// project. A tag that parses but points nowhere falls through to the next
// rule rather than failing the message.
type Resolver struct {
	projects store.ProjectStore
	logger   *slog.Logger
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func NewResolver(projects store.ProjectStore, opts ...Option) *Resolver {
	r := &Resolver{projects: projects, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the project a message belongs to, creating one when no
// rule matches. The second return reports whether the project was created
// by this call.
func (r *Resolver) Resolve(ctx context.Context, orgID id.OrgID, tag, extractedName, sender string) (*models.Project, bool, error) {
	if tag != "" {
		project, err := r.byTag(ctx, orgID, tag)
		if err != nil {
			return nil, false, err
		}
		if project != nil {
			return project, false, nil
		}
	}

	if name := strings.TrimSpace(extractedName); name != "" && sender != "" {
		project, err := r.projects.FindByNameAndSender(ctx, orgID, name, sender)
		if err == nil {
			return project, false, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, false, dErrors.Wrap(err, dErrors.CodeTransient, "project lookup failed")
		}
	}

	project, err := models.New(orgID, extractedName, sender, requestcontext.Now(ctx))
	if err != nil {
		return nil, false, err
	}
	if err := r.projects.Create(ctx, project); err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeTransient, "project create failed")
	}
	r.logger.InfoContext(ctx, "project created",
		"org_id", orgID,
		"project_id", project.ID,
		"name", project.Name,
	)
	return project, true, nil
}

func (r *Resolver) byTag(ctx context.Context, orgID id.OrgID, tag string) (*models.Project, error) {
	projectID, err := id.ParseProjectID(tag)
	if err != nil {
		r.logger.WarnContext(ctx, "recipient tag is not a project id", "tag", tag)
		return nil, nil
	}
	project, err := r.projects.FindByID(ctx, orgID, projectID)
	if errors.Is(err, sentinel.ErrNotFound) {
		r.logger.WarnContext(ctx, "recipient tag references unknown project",
			"org_id", orgID,
			"project_id", projectID,
		)
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "project lookup failed")
	}
	return project, nil
}

// Get returns one project, org-scoped.
func (r *Resolver) Get(ctx context.Context, orgID id.OrgID, projectID id.ProjectID) (*models.Project, error) {
	project, err := r.projects.FindByID(ctx, orgID, projectID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "project %s not found", projectID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load project")
	}
	return project, nil
}

// List returns the organization's projects, most recently updated first.
func (r *Resolver) List(ctx context.Context, orgID id.OrgID) ([]*models.Project, error) {
	projects, err := r.projects.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list projects")
	}
	return projects, nil
}
