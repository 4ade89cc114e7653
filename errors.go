/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

var (
	// ErrDuplicateSession is returned when a caller insists on creating a
	// session under an id already held by an active session.
	ErrDuplicateSession = errors.New("game id already in use")

	// ErrSessionNotFound is returned on lookup of an unknown game id.
	ErrSessionNotFound = errors.New("game not found")

	// ErrSessionClosed is returned when an operation reaches a session
	// that has already been torn down.
	ErrSessionClosed = errors.New("game session closed")

	// ErrGameStarted is returned when a join names no existing team after
	// the lobby phase has ended.
	ErrGameStarted = errors.New("game already started")

	// ErrGameFull is returned when a join would exceed the team limit.
	ErrGameFull = errors.New("game is full")

	// ErrInvalidState is returned when a transition is requested that the
	// current phase does not permit.
	ErrInvalidState = errors.New("invalid game state for this action")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
