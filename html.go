/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
)

func serveHomePage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(newPage("wordrush", "Start a game")))
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: Amazonbot
Disallow: /

User-agent: Applebot-Extended
Disallow: /

User-agent: Bytespider
Disallow: /

User-agent: CCBot
Disallow: /

User-agent: ClaudeBot
Disallow: /

User-agent: Google-Extended
Disallow: /

User-agent: GPTBot
Disallow: /

User-agent: meta-externalagent
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}

// Simple HTML client for quick testing
const indexHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>wordrush</title>
<style>
  body { font-family: system-ui, -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 2rem; }
  h1 { margin-bottom: 0.5rem; }
  #status { margin-bottom: 1rem; font-size: 0.9rem; }
  #log { margin-top: 1rem; padding: 0; list-style: none; font-size: 0.85rem; }
  #log li { padding: 0.25rem 0; border-bottom: 1px solid #ddd; }
  pre { background: #f4f4f4; padding: 0.5rem; overflow-x: auto; }
  button { margin-right: 0.5rem; }
</style>
</head>
<body>
<h1>wordrush</h1>
<div id="status">Connecting…</div>
<div>
  <button id="start">Start game</button>
  <button id="endturn">End turn</button>
  <button id="word">Next word</button>
</div>
<pre id="state"></pre>
<ul id="log"></ul>

<script>
(function() {
  const statusEl = document.getElementById('status');
  const stateEl = document.getElementById('state');
  const logEl = document.getElementById('log');

  let state = null;

  function note(text) {
    const li = document.createElement('li');
    li.textContent = text;
    logEl.prepend(li);
  }

  const proto = (location.protocol === 'https:') ? 'wss://' : 'ws://';
  const wsPath = location.pathname.replace(/\/$/, '') + '/ws';
  const gameId = location.pathname.replace(/\/$/, '').split('/').pop();
  const ws = new WebSocket(proto + location.host + wsPath);

  function send(type, payload) {
    ws.send(JSON.stringify({ type: type, payload: payload }));
  }

  ws.onopen = function() {
    statusEl.textContent = 'Connected.';
    const teamName = prompt('Enter your team name:') || '';
    send('join_game', { gameId: gameId, teamName: teamName });
  };

  ws.onmessage = function(event) {
    try {
      const msg = JSON.parse(event.data);

      if (msg.type === 'game_state') {
        state = msg.payload;
        stateEl.textContent = JSON.stringify(state, null, 2);
        return;
      }

      if (msg.type === 'word') {
        note('Word: ' + (msg.payload.exhausted ? '(exhausted)' : msg.payload.word));
        return;
      }

      if (msg.type === 'error') {
        note('Error: ' + msg.payload.message);
        return;
      }

      note(msg.type + ' ' + JSON.stringify(msg.payload || {}));
    } catch (e) {
      console.error('bad message', e);
    }
  };

  ws.onclose = function() {
    statusEl.textContent = 'Disconnected.';
  };

  ws.onerror = function() {
    statusEl.textContent = 'Error with WebSocket.';
  };

  document.getElementById('start').onclick = function() {
    if (!state) { return; }
    send('start_game', {
      teams: state.teams,
      includedCategories: [],
      includedDifficulties: ['Easy'],
      turnDuration: 30,
      totalRounds: 3
    });
  };

  document.getElementById('endturn').onclick = function() {
    if (!state || !state.teams.length) { return; }
    const team = state.teams[state.currentTeamIndex];
    const score = parseInt(prompt('Score for ' + team.name + ':') || '0', 10);
    send('end_turn', { teamId: team.id, score: score, words: [] });
  };

  document.getElementById('word').onclick = function() {
    send('next_word', {});
  };
})();
</script>
</body>
</html>
`

func indexHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		_, _ = w.Write([]byte(indexHTML))
	}
}
