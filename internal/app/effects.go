package app

import (
	"context"

	"github.com/sirupsen/logrus"

	"taskflow/api/internal/activity"
	"taskflow/api/internal/search"
	"taskflow/api/internal/store"
)

// effects collects the side effects of one mutation. Nothing in here runs
// until the primary write has been persisted, and nothing in here can fail
// the mutation.
type effects struct {
	activity  []activity.Entry
	events    []pendingEvent
	indexed   []search.TaskRecord
	unindexed []string
	emails    []invitationEmail
}

type pendingEvent struct {
	topic   string
	name    string
	payload any
}

type invitationEmail struct {
	to            string
	inviterName   string
	workspaceName string
	link          string
}

func (fx *effects) record(userID string, action activity.Action, resourceType activity.ResourceType, resourceID, description string) {
	fx.activity = append(fx.activity, activity.Entry{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Description:  description,
	})
}

func (fx *effects) publish(topic, name string, payload any) {
	fx.events = append(fx.events, pendingEvent{topic: topic, name: name, payload: payload})
}

func (fx *effects) index(task store.Task, workspaceID string) {
	fx.indexed = append(fx.indexed, search.TaskRecord{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		ProjectID:   task.ProjectID,
		WorkspaceID: workspaceID,
		Status:      task.Status,
		Priority:    task.Priority,
		IsArchived:  task.IsArchived,
	})
}

func (fx *effects) unindex(taskIDs ...string) {
	fx.unindexed = append(fx.unindexed, taskIDs...)
}

func (fx *effects) email(message invitationEmail) {
	fx.emails = append(fx.emails, message)
}

const effectQueueSize = 256

type queuedEffects struct {
	ctx context.Context
	fx  *effects
}

// flush writes activity entries inline, then queues realtime events, search
// indexing and email for the effect worker. The request context's
// cancellation is dropped so a client hanging up does not lose the audit
// trail.
func (s *Service) flush(ctx context.Context, fx *effects) {
	ctx = context.WithoutCancel(ctx)
	for _, entry := range fx.activity {
		s.recorder.Record(ctx, entry)
	}
	if len(fx.events) == 0 && len(fx.indexed) == 0 && len(fx.unindexed) == 0 && len(fx.emails) == 0 {
		return
	}

	s.queueMu.Lock()
	if s.closed {
		s.queueMu.Unlock()
		s.runEffects(ctx, fx)
		return
	}
	s.pending.Add(1)
	s.queue <- queuedEffects{ctx: ctx, fx: fx}
	s.queueMu.Unlock()
}

func (s *Service) runEffectQueue() {
	defer s.worker.Done()
	for job := range s.queue {
		s.runEffects(job.ctx, job.fx)
		s.pending.Done()
	}
}

func (s *Service) runEffects(ctx context.Context, fx *effects) {
	for _, event := range fx.events {
		if err := s.notifier.Publish(ctx, event.topic, event.name, event.payload); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"topic": event.topic, "event": event.name}).Warn("realtime publish failed")
		}
	}
	if s.search != nil {
		for _, record := range fx.indexed {
			s.search.IndexTask(record)
		}
		if len(fx.unindexed) > 0 {
			s.search.DeleteTasks(fx.unindexed)
		}
	}
	for _, message := range fx.emails {
		s.sendInvitation(message)
	}
}

func (s *Service) sendInvitation(message invitationEmail) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		s.log.WithFields(logrus.Fields{"to": message.to, "link": message.link}).Info("email not configured, invitation link logged instead")
		return
	}
	if err := s.mailer.SendInvitationEmail(message.to, message.inviterName, message.workspaceName, message.link); err != nil {
		s.log.WithError(err).WithField("to", message.to).Warn("invitation email failed")
	}
}
