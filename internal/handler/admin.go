package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/classbot/internal/model"
)

func (h *Handler) handleListMembers(w http.ResponseWriter, _ *http.Request) {
	members, err := h.roster.ListMembers()
	if err != nil {
		slog.Error("failed to list members", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

type importResult struct {
	Imported int `json:"imported"`
}

// handleImportMembers registers a JSON array of members. Entries are
// upserted by phone, so re-importing the same file is harmless.
func (h *Handler) handleImportMembers(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)

	var members []model.Member
	if err := json.NewDecoder(r.Body).Decode(&members); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	for i, m := range members {
		if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.Phone) == "" {
			http.Error(w, "member "+m.Name+": name and phone are required", http.StatusBadRequest)
			return
		}
		switch m.Role {
		case model.MemberStudent, model.MemberTeacher, model.MemberParent:
		case "":
			members[i].Role = model.MemberStudent
		default:
			http.Error(w, "member "+m.Name+": unknown role "+string(m.Role), http.StatusBadRequest)
			return
		}
	}

	for _, m := range members {
		if _, err := h.roster.RegisterMember(m); err != nil {
			slog.Error("failed to import member", "name", m.Name, "error", err)
			http.Error(w, "failed to import member "+m.Name, http.StatusInternalServerError)
			return
		}
	}

	slog.Info("imported members via admin", "count", len(members))
	writeJSON(w, http.StatusOK, importResult{Imported: len(members)})
}

func (h *Handler) handleExport(w http.ResponseWriter, _ *http.Request) {
	export, err := h.roster.ExportRoster()
	if err != nil {
		slog.Error("failed to export roster", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, export)
}
