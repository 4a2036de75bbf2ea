package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/target/members-console/internal/domain/model"
)

// MemberService is the member and registration surface the screens need.
type MemberService interface {
	List(ctx context.Context, opts model.MembersListOptions) (model.CursorPage[model.Member], error)
	Get(ctx context.Context, id string) (*model.Member, error)
	Create(ctx context.Context, in model.MemberInput) (*model.Member, error)
	Update(ctx context.Context, id string, in model.MemberInput) (*model.Member, error)
	Delete(ctx context.Context, id string) error
	Registration(ctx context.Context) (*model.Registration, error)
	CompleteRegistration(ctx context.Context, req model.RegistrationRequest) error
}

// MemberHandlers serves the member screens.
type MemberHandlers struct {
	Svc      MemberService
	T        *TemplateRenderer
	PageSize int
	Logger   *slog.Logger
}

func (h *MemberHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type membersView struct {
	Members []model.Member
	NextURL string
}

type memberView struct {
	Member *model.Member
}

type memberFormView struct {
	ID        string
	Input     model.MemberInput
	Errors    map[string]string
	FormError string
}

// List renders one page of members. The cursor query parameter continues a listing.
// GET /members.
func (h *MemberHandlers) List(w http.ResponseWriter, r *http.Request) {
	opts := model.MembersListOptions{Size: h.PageSize, Cursor: r.URL.Query().Get("cursor")}
	if s, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil {
		opts.Size = s
	}
	page, err := h.Svc.List(r.Context(), opts)
	if err != nil {
		renderPageError(w, r, h.T, h.logger(), err)
		return
	}
	view := membersView{Members: page.Data}
	if page.HasMore() {
		q := url.Values{"cursor": {page.NextCursor}}
		if opts.Size > 0 {
			q.Set("size", strconv.Itoa(opts.Size))
		}
		view.NextURL = PathMembers + "?" + q.Encode()
	}
	h.render(w, r, http.StatusOK, pageMembers, "Members", view)
}

// Show renders one member.
// GET /members/{id}.
func (h *MemberHandlers) Show(w http.ResponseWriter, r *http.Request) {
	m, err := h.Svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		renderPageError(w, r, h.T, h.logger(), err)
		return
	}
	h.render(w, r, http.StatusOK, pageMember, m.Name, memberView{Member: m})
}

// New renders an empty member form.
// GET /members/new.
func (h *MemberHandlers) New(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pageMemberForm, "New member", memberFormView{})
}

// Edit renders the form for an existing member.
// GET /members/{id}/edit.
func (h *MemberHandlers) Edit(w http.ResponseWriter, r *http.Request) {
	m, err := h.Svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		renderPageError(w, r, h.T, h.logger(), err)
		return
	}
	h.render(w, r, http.StatusOK, pageMemberForm, "Edit member", memberFormView{
		ID:    m.ID,
		Input: model.MemberInput{Name: m.Name, Email: m.Email, PhoneNumber: m.PhoneNumber},
	})
}

// Create handles the new member form.
// POST /members.
func (h *MemberHandlers) Create(w http.ResponseWriter, r *http.Request) {
	in := memberInputFromForm(r)
	m, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		h.formError(w, r, memberFormView{Input: in}, err)
		return
	}
	SetFlash(w, FlashSuccess, "Member created successfully")
	http.Redirect(w, r, PathMembers+"/"+url.PathEscape(m.ID), http.StatusSeeOther)
}

// Update handles the edit form.
// POST /members/{id}.
func (h *MemberHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	in := memberInputFromForm(r)
	if _, err := h.Svc.Update(r.Context(), id, in); err != nil {
		h.formError(w, r, memberFormView{ID: id, Input: in}, err)
		return
	}
	SetFlash(w, FlashSuccess, "Member updated successfully")
	http.Redirect(w, r, PathMembers+"/"+url.PathEscape(id), http.StatusSeeOther)
}

// Delete removes a member.
// POST /members/{id}/delete.
func (h *MemberHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		renderPageError(w, r, h.T, h.logger(), err)
		return
	}
	SetFlash(w, FlashSuccess, "Member deleted successfully")
	http.Redirect(w, r, PathMembers, http.StatusSeeOther)
}

// formError re-renders the form for validation failures and falls back to
// the error page otherwise.
func (h *MemberHandlers) formError(w http.ResponseWriter, r *http.Request, view memberFormView, err error) {
	if !isValidation(err) {
		renderPageError(w, r, h.T, h.logger(), err)
		return
	}
	view.Errors = fieldErrors(err)
	if view.Errors == nil {
		view.FormError = userMessage(err)
	}
	title := "New member"
	if view.ID != "" {
		title = "Edit member"
	}
	data := newPageData(w, r, title, view)
	if view.FormError != "" {
		data.Flash = &Flash{Kind: FlashError, Message: view.FormError}
	}
	if renderErr := h.T.Render(w, http.StatusUnprocessableEntity, pageMemberForm, data); renderErr != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *MemberHandlers) render(w http.ResponseWriter, r *http.Request, status int, page, title string, view any) {
	if err := h.T.Render(w, status, page, newPageData(w, r, title, view)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func memberInputFromForm(r *http.Request) model.MemberInput {
	return model.MemberInput{
		Name:        r.PostFormValue("name"),
		Email:       r.PostFormValue("email"),
		PhoneNumber: r.PostFormValue("phoneNumber"),
	}
}
