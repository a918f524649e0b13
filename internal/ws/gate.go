package ws

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"project-chat/internal/auth"
	"project-chat/internal/models"
	"project-chat/internal/repositories"
)

// Close reasons sent to rejected connections.
const (
	ReasonInvalidProjectID = "Invalid projectId"
	ReasonProjectNotFound  = "Project not found"
	ReasonAuthentication   = "Authentication error"
)

var (
	ErrInvalidProjectID = errors.New("invalid project id")
	ErrProjectNotFound  = errors.New("project not found")
	ErrAuthentication   = errors.New("authentication failed")
)

// AdmissionError rejects a connection attempt with a client-facing reason.
type AdmissionError struct {
	Reason string
	Err    error
}

func (e *AdmissionError) Error() string {
	return e.Reason + ": " + e.Err.Error()
}

func (e *AdmissionError) Unwrap() error {
	return e.Err
}

// Admission is what the gate learned about an accepted connection.
type Admission struct {
	Project  models.Project
	Identity models.Identity
}

// Gate admits connections into project rooms.
type Gate struct {
	projects repositories.ProjectRepository
	verifier auth.Verifier
	hub      *Hub
	logger   *zap.Logger
}

func NewGate(projects repositories.ProjectRepository, verifier auth.Verifier, hub *Hub, logger *zap.Logger) *Gate {
	return &Gate{projects: projects, verifier: verifier, hub: hub, logger: logger}
}

// Admit validates the claimed project and credential. On success the session
// built by newSession is joined to the project's room and returned. Nothing is
// registered on any rejection path.
func (g *Gate) Admit(ctx context.Context, claimedID, credential string, newSession func(Admission) *Session) (*Session, error) {
	projectID, err := uuid.Parse(claimedID)
	if err != nil {
		return nil, &AdmissionError{Reason: ReasonInvalidProjectID, Err: ErrInvalidProjectID}
	}

	project, err := g.projects.GetProject(ctx, projectID)
	if err != nil {
		if !errors.Is(err, repositories.ErrProjectNotFound) {
			g.logger.Error("project lookup failed", zap.String("project_id", projectID.String()), zap.Error(err))
		}
		return nil, &AdmissionError{Reason: ReasonProjectNotFound, Err: ErrProjectNotFound}
	}

	if credential == "" {
		return nil, &AdmissionError{Reason: ReasonAuthentication, Err: errors.Join(ErrAuthentication, auth.ErrMissingToken)}
	}

	identity, err := g.verifier.Verify(ctx, credential)
	if err != nil {
		return nil, &AdmissionError{Reason: ReasonAuthentication, Err: errors.Join(ErrAuthentication, err)}
	}

	session := newSession(Admission{Project: project, Identity: identity})
	session.Identity = identity
	session.RoomID = project.RoomID()
	g.hub.Join(session)
	return session, nil
}
