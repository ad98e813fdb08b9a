// Package http provides HTTP handlers and middleware for the training session booking API.
//
// The booking wizard keeps its state server side. The draft identifier travels
// in the `booking_draft` cookie (or the `X-Booking-Draft` header for API
// clients) and is set when step 1 succeeds:
//   - GET /availability?module_id=&date=YYYY-MM-DD&time=HH:MM: advisory slot
//     check. Repeat `slot=module|date|time` to check several slots at once.
//   - POST /drafts: step 1, body {"group_id"}. Discards any previous draft.
//   - GET /drafts/current?step=N: resumes the wizard page N. Returns 409 with
//     `redirect_step` when an earlier step is incomplete.
//   - PUT /drafts/current/slots: step 2, body {"slots":[{"module_id","date","time"}]}.
//   - PUT /drafts/current/participants: step 3, body {"participants":[{"name","email","position"}]}.
//   - POST /drafts/current/documents: step 4, multipart form with `files`,
//     `global_document_ids` and `additional_info`.
//   - POST /drafts/current/confirm: step 5.
//   - POST /drafts/current/finalize: body {"send_confirmation"}. Creates the
//     sessions atomically and clears the draft cookie.
//   - DELETE /drafts/current: abandons the draft and its uploads.
//
// Catalog endpoints (/departments, /modules, /groups/{id}/participants,
// /documents/global, /activity) and waitlist endpoints (/waitlist,
// PATCH /waitlist/{id}) exchange the application types directly.
//
// Errors use `errorResponse` from responder.go: validation failures carry a
// field keyed `errors` map, slot conflicts a `conflicts` list.
package http
