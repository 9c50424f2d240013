package server

import (
	"checkline/internal/domain"
	"checkline/internal/engine"
	"checkline/internal/progress"
)

type DocumentResponse struct {
	State    string           `json:"state" enum:"none,loaded,active,closed"`
	FileName string           `json:"file_name,omitempty"`
	Document *domain.Document `json:"document,omitempty"`
}

type SectionProgress struct {
	ID     string          `json:"id"`
	Title  string          `json:"title"`
	Stats  progress.Stats  `json:"stats"`
	Badges progress.Counts `json:"badges"`
}

type ProgressResponse struct {
	Global   progress.Summary  `json:"global"`
	Sections []SectionProgress `json:"sections"`
}

type TitleRequest struct {
	Title string `json:"title" example:"Quadri elettrici"`
}

type TextRequest struct {
	Text string `json:"text" example:"Verifica serraggi"`
}

type MoveRequest struct {
	Direction string `json:"direction" enum:"up,down"`
}

type MoveResponse struct {
	Moved bool `json:"moved"`
}

type StatusRequest struct {
	Status string  `json:"status" example:"ko" doc:"todo, ok, ko, na (English names accepted)"`
	Note   *string `json:"note,omitempty" doc:"saved before the status changes"`
}

type NoteRequest struct {
	Note string `json:"note"`
}

type PhotoRequest struct {
	DataURL string `json:"dataUrl" doc:"data:image/...;base64,... payload"`
	Name    string `json:"name,omitempty"`
	At      *int   `json:"at,omitempty" doc:"slot to replace; omitted appends"`
}

type TransitionResponse = engine.Transition

// documentResponse snapshots the session; huma encodes the body after the service lock is released.
func documentResponse(s *engine.Session) DocumentResponse {
	resp := DocumentResponse{State: string(s.State), FileName: s.FileName}
	if s.HasDocument() {
		resp.Document = s.Doc.Clone()
	}
	return resp
}
