package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"mcpgateway/internal/auth"
	"mcpgateway/internal/store"
	"mcpgateway/pkg/gwerr"
)

// adminAPI implements spec.md §6's registry admin surface: CRUD over
// gateways/tools/resources/prompts/servers, every request authenticated the
// same way as the MCP transports (spec.md §1 "the core consumes a verified
// principal"); IsAdmin is required for mutating verbs.
type adminAPI struct {
	verifier  *auth.Verifier
	gateways  *store.GatewayStore
	tools     *store.ToolStore
	resources *store.ResourceStore
	prompts   *store.PromptStore
	vservers  *store.VirtualServerStore
}

func (a *adminAPI) authenticate(r *http.Request) (store.Principal, error) {
	return a.verifier.Authenticate(r.Context(), r.Header.Get("Authorization"))
}

func (a *adminAPI) requireAdmin(w http.ResponseWriter, r *http.Request) (store.Principal, bool) {
	principal, err := a.authenticate(r)
	if err != nil {
		writeErr(w, err)
		return store.Principal{}, false
	}
	if r.Method != http.MethodGet && !principal.IsAdmin {
		writeErr(w, gwerr.New(gwerr.KindForbidden, "admin privilege required"))
		return store.Principal{}, false
	}
	return principal, true
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return gwerr.Wrap(gwerr.KindInvalid, err, "malformed request body")
	}
	return nil
}

func pageFromQuery(r *http.Request) store.Page {
	p := store.Page{Limit: 100}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Offset = n
		}
	}
	return p
}

// --- gateways ---

func (a *adminAPI) gatewaysCollection(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		list, err := a.gateways.List(r.Context(), principal.TenantID, principal, pageFromQuery(r))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSONBody(w, http.StatusOK, list)
	case http.MethodPost:
		var g store.Gateway
		if err := decodeJSON(r, &g); err != nil {
			writeErr(w, err)
			return
		}
		g.TenantID = principal.TenantID
		if err := a.gateways.Create(r.Context(), &g); err != nil {
			writeErr(w, err)
			return
		}
		writeJSONBody(w, http.StatusCreated, g)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *adminAPI) gatewayItem(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	id, err := store.ParseID(r.PathValue("id"))
	if err != nil {
		writeErr(w, gwerr.New(gwerr.KindInvalid, "malformed gateway id"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		gw, err := a.gateways.GetByID(r.Context(), id, principal)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSONBody(w, http.StatusOK, gw)
	case http.MethodPut:
		var patch store.Gateway
		if err := decodeJSON(r, &patch); err != nil {
			writeErr(w, err)
			return
		}
		err := a.gateways.Update(r.Context(), id, patch.Version, func(g *store.Gateway) {
			g.Name, g.URL, g.Enabled = patch.Name, patch.URL, patch.Enabled
			g.PassthroughHeaders = patch.PassthroughHeaders
		}, principal)
		if err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := a.gateways.Delete(r.Context(), id, principal); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// --- tools ---

func (a *adminAPI) toolsCollection(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		list, err := a.tools.List(r.Context(), principal, pageFromQuery(r))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSONBody(w, http.StatusOK, list)
	case http.MethodPost:
		var t store.Tool
		if err := decodeJSON(r, &t); err != nil {
			writeErr(w, err)
			return
		}
		if err := a.tools.Create(r.Context(), &t); err != nil {
			writeErr(w, err)
			return
		}
		writeJSONBody(w, http.StatusCreated, t)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *adminAPI) toolItem(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	id, err := store.ParseID(r.PathValue("id"))
	if err != nil {
		writeErr(w, gwerr.New(gwerr.KindInvalid, "malformed tool id"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		t, err := a.tools.GetByID(r.Context(), id, principal)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSONBody(w, http.StatusOK, t)
	case http.MethodPut:
		var patch store.Tool
		if err := decodeJSON(r, &patch); err != nil {
			writeErr(w, err)
			return
		}
		err := a.tools.Update(r.Context(), id, patch.Version, func(t *store.Tool) {
			t.Description, t.Enabled, t.InputSchema = patch.Description, patch.Enabled, patch.InputSchema
		}, principal)
		if err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := a.tools.Delete(r.Context(), id, principal); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// --- resources ---

func (a *adminAPI) resourcesCollection(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		list, err := a.resources.List(r.Context(), principal, pageFromQuery(r))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSONBody(w, http.StatusOK, list)
	case http.MethodPost:
		var res store.Resource
		if err := decodeJSON(r, &res); err != nil {
			writeErr(w, err)
			return
		}
		if err := a.resources.Create(r.Context(), &res); err != nil {
			writeErr(w, err)
			return
		}
		writeJSONBody(w, http.StatusCreated, res)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *adminAPI) resourceItem(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	id, err := store.ParseID(r.PathValue("id"))
	if err != nil {
		writeErr(w, gwerr.New(gwerr.KindInvalid, "malformed resource id"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		res, err := a.resources.GetByID(r.Context(), id, principal)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSONBody(w, http.StatusOK, res)
	case http.MethodDelete:
		if err := a.resources.Delete(r.Context(), id, principal); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// --- prompts ---

func (a *adminAPI) promptsCollection(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		list, err := a.prompts.List(r.Context(), principal, pageFromQuery(r))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSONBody(w, http.StatusOK, list)
	case http.MethodPost:
		var p store.Prompt
		if err := decodeJSON(r, &p); err != nil {
			writeErr(w, err)
			return
		}
		if err := a.prompts.Create(r.Context(), &p); err != nil {
			writeErr(w, err)
			return
		}
		writeJSONBody(w, http.StatusCreated, p)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *adminAPI) promptItem(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	id, err := store.ParseID(r.PathValue("id"))
	if err != nil {
		writeErr(w, gwerr.New(gwerr.KindInvalid, "malformed prompt id"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		p, err := a.prompts.GetByID(r.Context(), id, principal)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSONBody(w, http.StatusOK, p)
	case http.MethodDelete:
		if err := a.prompts.Delete(r.Context(), id, principal); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// --- virtual servers ---

func (a *adminAPI) vserversCollection(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		list, err := a.vservers.List(r.Context(), principal, pageFromQuery(r))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSONBody(w, http.StatusOK, list)
	case http.MethodPost:
		var v store.VirtualServer
		if err := decodeJSON(r, &v); err != nil {
			writeErr(w, err)
			return
		}
		v.OwnerTeamID = principal.TeamID
		if err := a.vservers.Create(r.Context(), &v); err != nil {
			writeErr(w, err)
			return
		}
		writeJSONBody(w, http.StatusCreated, v)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *adminAPI) vserverItem(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	id, err := store.ParseID(r.PathValue("id"))
	if err != nil {
		writeErr(w, gwerr.New(gwerr.KindInvalid, "malformed virtual server id"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		v, err := a.vservers.GetByID(r.Context(), id, principal)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSONBody(w, http.StatusOK, v)
	case http.MethodDelete:
		if err := a.vservers.Delete(r.Context(), id, principal); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
