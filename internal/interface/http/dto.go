package http

import (
	"time"

	"shelflend/internal/registry"
	"shelflend/internal/taskrec"
)

type booksResponse struct {
	Books []bookDTO `json:"books"`
}

type bookDTO struct {
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Author  string     `json:"author,omitempty"`
	Updated *time.Time `json:"updated,omitempty"`
	Status  string     `json:"status"`

	LastRevoke *resultDTO `json:"last_revoke,omitempty"`
}

type resultDTO struct {
	Succeeded bool      `json:"succeeded"`
	ErrorCode string    `json:"error_code,omitempty"`
	Steps     []stepDTO `json:"steps"`
}

type stepDTO struct {
	Description string `json:"description"`
	Succeeded   bool   `json:"succeeded"`
	Message     string `json:"message,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
}

type syncResponse struct {
	Synced  int       `json:"synced"`
	Skipped int       `json:"skipped"`
	Removed int       `json:"removed"`
	Steps   []stepDTO `json:"steps"`
}

type eventDTO struct {
	Type   string `json:"type"`
	BookID string `json:"book_id"`
	Title  string `json:"title,omitempty"`
	Status string `json:"status,omitempty"`
}

func toBookDTO(entry registry.Entry) bookDTO {
	dto := bookDTO{
		ID:     string(entry.Book.ID),
		Title:  entry.Book.Title,
		Author: entry.Book.Author,
		Status: entry.Status.Kind.String(),
	}
	if !entry.Book.Updated.IsZero() {
		updated := entry.Book.Updated
		dto.Updated = &updated
	}
	if entry.Status.LastRevoke != nil {
		r := entry.Status.LastRevoke
		dto.LastRevoke = toResultDTOPtr(r.Succeeded(), r.LastErrorCode, r.Steps)
	}
	return dto
}

func toResultDTO(succeeded bool, errorCode string, steps []taskrec.Step) resultDTO {
	return resultDTO{
		Succeeded: succeeded,
		ErrorCode: errorCode,
		Steps:     toStepDTOs(steps),
	}
}

func toResultDTOPtr(succeeded bool, errorCode string, steps []taskrec.Step) *resultDTO {
	dto := toResultDTO(succeeded, errorCode, steps)
	return &dto
}

func toStepDTOs(steps []taskrec.Step) []stepDTO {
	out := make([]stepDTO, 0, len(steps))
	for _, step := range steps {
		dto := stepDTO{Description: step.Description}
		switch res := step.Resolution.(type) {
		case taskrec.Succeeded:
			dto.Succeeded = true
			dto.Message = res.Message
		case taskrec.Failed:
			dto.Message = res.Message
			dto.ErrorCode = res.ErrorCode
		}
		out = append(out, dto)
	}
	return out
}

func toEventDTO(event registry.Event) eventDTO {
	dto := eventDTO{BookID: string(event.BookID)}
	switch event.Type {
	case registry.EventRemoved:
		dto.Type = "removed"
	default:
		dto.Type = "changed"
		dto.Title = event.Book.Title
		dto.Status = event.Status.Kind.String()
	}
	return dto
}
