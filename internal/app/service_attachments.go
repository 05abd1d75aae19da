package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"flowboard/api/internal/rbac"
	"flowboard/api/internal/realtime"
	"flowboard/api/internal/store"
	"flowboard/api/internal/util"
)

const maxAttachmentBytes = 25 << 20

func errAttachmentsDisabled() *DomainError {
	return domainError(http.StatusServiceUnavailable, "ATTACHMENTS_DISABLED", "Attachment storage is not configured", nil)
}

// CreateAttachment records attachment metadata and returns a presigned
// upload URL. The file body never passes through the API server.
func (s *Service) CreateAttachment(ctx context.Context, sess Session, taskID, fileName, contentType string, sizeBytes int64) (AttachmentDTO, error) {
	if s.objects == nil {
		return AttachmentDTO{}, errAttachmentsDisabled()
	}
	boardID, err := s.store.BoardIDForTask(ctx, taskID)
	if err != nil {
		return AttachmentDTO{}, err
	}
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionWrite); err != nil {
		return AttachmentDTO{}, err
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return AttachmentDTO{}, errBadRequest("fileName is required")
	}
	if sizeBytes <= 0 || sizeBytes > maxAttachmentBytes {
		return AttachmentDTO{}, errBadRequest("sizeBytes must be between 1 byte and 25 MiB")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	id := util.NewID("att")
	attachment, err := s.store.InsertAttachment(ctx, store.Attachment{
		ID:          id,
		TaskID:      taskID,
		ObjectKey:   fmt.Sprintf("tasks/%s/%s", taskID, id),
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   sizeBytes,
	})
	if err != nil {
		return AttachmentDTO{}, err
	}
	uploadURL, err := s.objects.PresignUpload(ctx, attachment.ObjectKey)
	if err != nil {
		return AttachmentDTO{}, fmt.Errorf("presign upload: %w", err)
	}
	dto := attachmentDTO(attachment)
	dto.UploadURL = uploadURL
	s.afterCommit(ctx, mutation{
		boardID:  boardID,
		event:    &realtime.Event{Name: realtime.EventAttachCreated, Payload: attachmentDTO(attachment)},
		activity: &store.Activity{TaskID: &taskID, ActorID: sess.UserID, Type: "attachment:added", Description: fmt.Sprintf("%s attached %q", sess.UserName, fileName)},
	})
	return dto, nil
}

func (s *Service) ListAttachments(ctx context.Context, sess Session, taskID string) ([]AttachmentDTO, error) {
	boardID, err := s.store.BoardIDForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	attachments, err := s.store.ListAttachments(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := make([]AttachmentDTO, 0, len(attachments))
	for _, a := range attachments {
		out = append(out, attachmentDTO(a))
	}
	return out, nil
}

// AttachmentDownloadURL presigns a GET serving the stored object under
// its original filename.
func (s *Service) AttachmentDownloadURL(ctx context.Context, sess Session, attachmentID string) (string, error) {
	if s.objects == nil {
		return "", errAttachmentsDisabled()
	}
	attachment, err := s.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return "", err
	}
	boardID, err := s.store.BoardIDForTask(ctx, attachment.TaskID)
	if err != nil {
		return "", err
	}
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionRead); err != nil {
		return "", err
	}
	return s.objects.PresignDownload(ctx, attachment.ObjectKey, attachment.FileName)
}

func (s *Service) DeleteAttachment(ctx context.Context, sess Session, attachmentID string) error {
	if s.objects == nil {
		return errAttachmentsDisabled()
	}
	attachment, err := s.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return err
	}
	boardID, err := s.store.BoardIDForTask(ctx, attachment.TaskID)
	if err != nil {
		return err
	}
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionWrite); err != nil {
		return err
	}
	deleted, err := s.store.DeleteAttachment(ctx, attachmentID)
	if err != nil {
		return err
	}
	// Object removal happens after the row is gone; a failure here only
	// strands the blob, which a bucket lifecycle rule reclaims.
	if err := s.objects.Remove(ctx, deleted.ObjectKey); err != nil {
		s.logger.WithError(err).WithField("object", deleted.ObjectKey).Warn("remove attachment object")
	}
	s.afterCommit(ctx, mutation{
		boardID:  boardID,
		event:    &realtime.Event{Name: realtime.EventAttachDeleted, Payload: map[string]string{"attachmentId": attachmentID, "taskId": deleted.TaskID}},
		activity: &store.Activity{TaskID: &deleted.TaskID, ActorID: sess.UserID, Type: "attachment:removed", Description: fmt.Sprintf("%s removed attachment %q", sess.UserName, deleted.FileName)},
	})
	return nil
}
