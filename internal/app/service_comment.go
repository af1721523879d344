package app

import (
	"context"
	"strings"

	"taskflow/api/internal/activity"
	"taskflow/api/internal/blob"
	"taskflow/api/internal/realtime"
	"taskflow/api/internal/store"
	"taskflow/api/internal/util"
)

// AddComment stores the comment and pushes it, with the author's profile,
// to everyone watching the task live.
func (s *Service) AddComment(ctx context.Context, actor, taskID, text string) (CommentView, error) {
	task, _, err := s.memberTask(ctx, actor, taskID)
	if err != nil {
		return CommentView{}, err
	}
	if strings.TrimSpace(text) == "" {
		return CommentView{}, invalid("Comment text is required")
	}
	now := s.now().UTC()
	comment := store.Comment{
		ID:          util.NewID("cmt"),
		Text:        text,
		TaskID:      task.ID,
		AuthorID:    actor,
		Mentions:    []store.Mention{},
		Reactions:   []store.Reaction{},
		Attachments: []store.Attachment{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateComment(ctx, comment); err != nil {
		return CommentView{}, err
	}
	view, err := s.commentView(ctx, comment)
	if err != nil {
		s.log.WithError(err).WithField("comment_id", comment.ID).Warn("hydrate comment author")
		view = CommentView{Comment: comment, Author: store.User{ID: actor}}
	}

	var fx effects
	fx.record(actor, activity.AddedComment, activity.ResourceTask, task.ID, "added comment "+activity.Truncate(text, descriptionLimit))
	fx.publish(realtime.TaskTopic(task.ID), realtime.EventNewComment, view)
	s.flush(ctx, &fx)
	return view, nil
}

func (s *Service) ListTaskComments(ctx context.Context, actor, taskID string) ([]CommentView, error) {
	if _, _, err := s.memberTask(ctx, actor, taskID); err != nil {
		return nil, err
	}
	comments, err := s.store.ListCommentsByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(comments))
	for _, comment := range comments {
		ids = append(ids, comment.AuthorID)
	}
	profiles, err := s.usersByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]CommentView, 0, len(comments))
	for _, comment := range comments {
		views = append(views, CommentView{Comment: comment, Author: profile(profiles, comment.AuthorID)})
	}
	return views, nil
}

// AddTaskAttachment reserves an object key, records the attachment on the
// task and returns a presigned URL the client uploads the bytes to.
func (s *Service) AddTaskAttachment(ctx context.Context, actor, taskID string, input AttachmentInput) (AttachmentUpload, error) {
	if s.blobs == nil {
		return AttachmentUpload{}, unavailable("Attachment storage is not configured")
	}
	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		return AttachmentUpload{}, invalid("File name is required")
	}
	if input.FileSize < 0 {
		return AttachmentUpload{}, invalid("File size cannot be negative")
	}
	key := blob.ObjectKey(taskID, fileName)

	var uploadURL string
	task, err := s.updateTask(ctx, actor, taskID, func(task *store.Task) (taskChange, error) {
		url, err := s.blobs.PresignUpload(ctx, key)
		if err != nil {
			return taskChange{}, err
		}
		uploadURL = url
		task.Attachments = append(task.Attachments, store.Attachment{
			FileName:   fileName,
			FileURL:    s.blobs.ObjectURL(key),
			FileType:   strings.TrimSpace(input.FileType),
			FileSize:   input.FileSize,
			UploadedBy: actor,
			UploadedAt: s.now().UTC(),
		})
		return taskChange{
			action:      activity.AddedAttachment,
			description: "added attachment " + activity.Truncate(fileName, descriptionLimit),
		}, nil
	})
	if err != nil {
		return AttachmentUpload{}, err
	}
	return AttachmentUpload{
		Attachment: task.Attachments[len(task.Attachments)-1],
		UploadURL:  uploadURL,
		Task:       task,
	}, nil
}
