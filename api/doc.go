// Package api exposes the judge over REST.
//
// Routes are mounted on a chi router. Everything under /api/v1 requires a
// Bearer token signed with HS256 that carries the user_id and role claims;
// the token is verified here but issued elsewhere.
package api
