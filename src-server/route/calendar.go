package route

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"revent/src-server/event"
	"revent/src-server/model"
	"revent/src-server/mutate"
	"revent/src-server/recur"
	"revent/src-server/utils"

	"github.com/google/uuid"
)

func Calendar(muxer *http.ServeMux, as *utils.AppState) {
	type GetEventsReqBody struct {
		CalendarID       string `json:"calendarID"`
		StartDateUnixUTC int64  `json:"startDateUnixUTC"`
		EndDateUnixUTC   int64  `json:"endDateUnixUTC"`
	}

	type OneEventRespBody struct {
		ID                    string `json:"id"`
		Title                 string `json:"title"`
		Description           string `json:"description"`
		Location              string `json:"location"`
		Category              string `json:"category"`
		StartDateUnixUTC      int64  `json:"startDateUnixUTC"`
		EndDateUnixUTC        int64  `json:"endDateUnixUTC"`
		Recurrence            string `json:"recurrence,omitempty"`
		IsVirtual             bool   `json:"isVirtual"`
		ParentID              string `json:"parentID,omitempty"`
		RecurrenceDateUnixUTC int64  `json:"recurrenceDateUnixUTC,omitempty"`
	}

	respond := func(ev *event.Event) OneEventRespBody {
		return OneEventRespBody{
			ID:                    ev.ID,
			Title:                 ev.Title,
			Description:           ev.Description,
			Location:              ev.Location,
			Category:              ev.Category,
			StartDateUnixUTC:      ev.StartUnixUTC,
			EndDateUnixUTC:        ev.EndUnixUTC,
			Recurrence:            ev.Recurrence,
			IsVirtual:             ev.IsVirtual,
			ParentID:              ev.ParentID,
			RecurrenceDateUnixUTC: ev.RecurrenceDateUnixUTC,
		}
	}

	// get the expanded occurrence view for a date range
	muxer.HandleFunc("POST /calendar/get-events",
		func(w http.ResponseWriter, r *http.Request) {
			var reqBody GetEventsReqBody
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}
			if reqBody.CalendarID == "" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide a calendar ID"))
				return
			}
			if reqBody.StartDateUnixUTC == 0 || reqBody.EndDateUnixUTC == 0 {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide a start date and end date"))
				return
			}

			occurrences, err := as.Store.OccurrencesInWindow(
				r.Context(),
				reqBody.CalendarID,
				time.Unix(reqBody.StartDateUnixUTC, 0).UTC(),
				time.Unix(reqBody.EndDateUnixUTC, 0).UTC(),
			)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't get events"))
				return
			}

			respBody := make([]OneEventRespBody, 0, len(occurrences))
			for _, occurrence := range occurrences {
				respBody = append(respBody, respond(occurrence))
			}
			respBodyJson, err := json.Marshal(respBody)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't marshal response body"))
				return
			}

			w.WriteHeader(http.StatusOK)
			w.Write(respBodyJson)
		})

	type CreateEventReqBody struct {
		CalendarID       string `json:"calendarID"`
		Title            string `json:"title"`
		Description      string `json:"description"`
		Location         string `json:"location"`
		Category         string `json:"category"`
		StartDateUnixUTC int64  `json:"startDateUnixUTC"`
		EndDateUnixUTC   int64  `json:"endDateUnixUTC"`
		Recurrence       string `json:"recurrence"`
	}

	// create a new event, the success response is the event ID
	muxer.HandleFunc("POST /calendar/create-event",
		func(w http.ResponseWriter, r *http.Request) {
			var reqBody CreateEventReqBody
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}
			if reqBody.CalendarID == "" || reqBody.Title == "" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide a calendar ID and a title"))
				return
			}

			// ensure calendar exists
			exists, err := as.BunDB.
				NewSelect().
				Model((*model.Calendar)(nil)).
				Where("channel_id = ?", reqBody.CalendarID).
				Exists(r.Context())
			switch {
			case err != nil:
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't check if calendar exists"))
				return
			case !exists:
				if _, err := as.BunDB.NewInsert().
					Model(&model.Calendar{
						ChannelID: reqBody.CalendarID,
						Name:      reqBody.CalendarID,
					}).
					Exec(r.Context()); err != nil {
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte("Can't create calendar"))
					return
				}
			}

			newEvent := &event.Event{
				ID:           uuid.NewString(),
				CalendarID:   reqBody.CalendarID,
				Title:        reqBody.Title,
				Description:  reqBody.Description,
				Location:     reqBody.Location,
				Category:     reqBody.Category,
				StartUnixUTC: reqBody.StartDateUnixUTC,
				EndUnixUTC:   reqBody.EndDateUnixUTC,
			}
			if raw := strings.TrimSpace(reqBody.Recurrence); raw != "" && !strings.EqualFold(raw, "none") {
				if _, err := recur.Parse(raw); err != nil {
					w.WriteHeader(http.StatusBadRequest)
					w.Write([]byte("Invalid recurrence rule"))
					return
				}
				newEvent.Recurrence = raw
				newEvent.RecurrenceGroupID = newEvent.ID
				newEvent.IsRecurrenceBase = true
			}
			if err := as.Store.ApplySync(r.Context(), []mutate.Operation{
				mutate.UpsertBase{Event: newEvent},
			}); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't create event"))
				return
			}

			w.WriteHeader(http.StatusOK)
			w.Write([]byte(newEvent.ID))
		})

	type ModifyEventReqBody struct {
		ID                    string  `json:"id"`
		OccurrenceDateUnixUTC int64   `json:"occurrenceDateUnixUTC"`
		Scope                 string  `json:"scope"`
		Title                 *string `json:"title"`
		Description           *string `json:"description"`
		Location              *string `json:"location"`
		Category              *string `json:"category"`
		StartDateUnixUTC      *int64  `json:"startDateUnixUTC"`
		EndDateUnixUTC        *int64  `json:"endDateUnixUTC"`
		Recurrence            *string `json:"recurrence"`
	}

	// modify an existing event; series members take a scope
	muxer.HandleFunc("POST /calendar/modify-event",
		func(w http.ResponseWriter, r *http.Request) {
			var reqBody ModifyEventReqBody
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}

			target, base, status, errMsg := loadTarget(as, r, reqBody.ID, reqBody.OccurrenceDateUnixUTC)
			if errMsg != "" {
				w.WriteHeader(status)
				w.Write([]byte(errMsg))
				return
			}

			scope, ok := parseScope(reqBody.Scope)
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid scope"))
				return
			}

			changes := event.ChangeSet{
				Title:        reqBody.Title,
				Description:  reqBody.Description,
				Location:     reqBody.Location,
				Category:     reqBody.Category,
				StartUnixUTC: reqBody.StartDateUnixUTC,
				EndUnixUTC:   reqBody.EndDateUnixUTC,
				Recurrence:   reqBody.Recurrence,
			}
			if changes.IsEmpty() {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Nothing to change"))
				return
			}

			ops, err := mutate.Resolve(base, target, changes, scope, mutate.ActionEdit)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Can't resolve change: " + err.Error()))
				return
			}
			if err := as.Store.ApplySync(r.Context(), ops); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't modify event"))
				return
			}

			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Event modified"))
		})

	type DeleteEventReqBody struct {
		ID                    string `json:"id"`
		OccurrenceDateUnixUTC int64  `json:"occurrenceDateUnixUTC"`
		Scope                 string `json:"scope"`
	}

	// delete an event or part of a series
	muxer.HandleFunc("POST /calendar/delete-event",
		func(w http.ResponseWriter, r *http.Request) {
			var reqBody DeleteEventReqBody
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}

			target, base, status, errMsg := loadTarget(as, r, reqBody.ID, reqBody.OccurrenceDateUnixUTC)
			if errMsg != "" {
				w.WriteHeader(status)
				w.Write([]byte(errMsg))
				return
			}

			scope, ok := parseScope(reqBody.Scope)
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid scope"))
				return
			}

			ops, err := mutate.Resolve(base, target, event.ChangeSet{}, scope, mutate.ActionDelete)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Can't resolve delete: " + err.Error()))
				return
			}
			if err := as.Store.ApplySync(r.Context(), ops); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't delete event"))
				return
			}

			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Event deleted"))
		})

	type RestoreOccurrenceReqBody struct {
		ID                    string `json:"id"`
		OccurrenceDateUnixUTC int64  `json:"occurrenceDateUnixUTC"`
	}

	// drop one date's override, restoring the series default
	muxer.HandleFunc("POST /calendar/restore-occurrence",
		func(w http.ResponseWriter, r *http.Request) {
			var reqBody RestoreOccurrenceReqBody
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Invalid request body"))
				return
			}
			if reqBody.ID == "" || reqBody.OccurrenceDateUnixUTC == 0 {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Please provide an event ID and an occurrence date"))
				return
			}

			ev, err := as.Store.GetEvent(r.Context(), reqBody.ID)
			if err != nil {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("Event not found"))
				return
			}
			base, err := as.Store.SeriesBase(r.Context(), ev)
			if err != nil {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("Series not found"))
				return
			}
			if base.Recurrence == "" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("Event doesn't repeat"))
				return
			}

			if err := as.Store.ApplySync(r.Context(), []mutate.Operation{
				mutate.DeleteException{
					SeriesID:    base.SeriesID(),
					DateUnixUTC: reqBody.OccurrenceDateUnixUTC,
				},
			}); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Can't restore occurrence"))
				return
			}

			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Occurrence restored"))
		})
}

// loadTarget resolves an event ID (and optional occurrence date) into
// the target occurrence and its series base. The string return is an
// error message for the client, blank on success.
func loadTarget(as *utils.AppState, r *http.Request, id string, occurrenceDateUnixUTC int64) (*event.Event, *event.Event, int, string) {
	if id == "" {
		return nil, nil, http.StatusBadRequest, "Please provide an event ID"
	}
	target, err := as.Store.GetEvent(r.Context(), id)
	if err != nil {
		return nil, nil, http.StatusNotFound, "Event not found"
	}
	if occurrenceDateUnixUTC != 0 {
		occurrence, err := as.Store.FindOccurrence(
			r.Context(), id, time.Unix(occurrenceDateUnixUTC, 0).UTC(),
		)
		if err != nil {
			return nil, nil, http.StatusNotFound, "Occurrence not found"
		}
		target = occurrence
	}
	base, err := as.Store.SeriesBase(r.Context(), target)
	if err != nil {
		return nil, nil, http.StatusNotFound, "Series not found"
	}
	return target, base, http.StatusOK, ""
}

func parseScope(raw string) (mutate.Scope, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "single", "this":
		return mutate.ScopeSingle, true
	case "following", "this-and-following":
		return mutate.ScopeFollowing, true
	case "all":
		return mutate.ScopeAll, true
	}
	return mutate.ScopeSingle, false
}
