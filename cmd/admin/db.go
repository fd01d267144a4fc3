package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// dbCmd queries the sqlite index a server writes under <data>/worlds/<id>/index.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	toolID := fs.String("tool", "", "tool id filter (events, audits)")
	evType := fs.String("type", "", "event type filter (events)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "tools"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}
	rows, err := runQuery(db, q, *toolID, *evType, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

type toolRow struct {
	ID               string `json:"id"`
	EnsureOwnership  bool   `json:"ensure_ownership"`
	DroppedRespawn   bool   `json:"dropped_respawn"`
	DroppedTimeoutMs int64  `json:"dropped_timeout_ms"`
	FullyAutoFire    bool   `json:"fully_auto_fire"`
	CooldownMs       int64  `json:"cooldown_ms"`
	QueueWindowMs    int64  `json:"queue_window_ms"`
	UpdatedAt        string `json:"updated_at"`
}

type eventRow struct {
	Run    int64  `json:"run"`
	Tick   int64  `json:"tick"`
	Seq    int    `json:"seq"`
	AtMs   int64  `json:"at_ms"`
	Type   string `json:"type"`
	ToolID string `json:"tool_id"`
	Actor  string `json:"actor,omitempty"`
	Code   string `json:"code,omitempty"`
}

type auditRow struct {
	Run    int64  `json:"run"`
	Tick   int64  `json:"tick"`
	AtMs   int64  `json:"at_ms"`
	Actor  string `json:"actor,omitempty"`
	Action string `json:"action"`
	ToolID string `json:"tool_id"`
	Reason string `json:"reason,omitempty"`
}

type countRow struct {
	ToolID string `json:"tool_id"`
	Type   string `json:"type"`
	Count  int64  `json:"count"`
}

// runQuery returns the newest rows first for events and audits; a later run
// sorts before every tick of an earlier one.
func runQuery(db *sql.DB, q, toolID, evType string, limit int) ([]any, error) {
	var out []any
	switch q {
	case "tools":
		rows, err := db.Query(`SELECT id,ensure_ownership,dropped_respawn,dropped_timeout_ms,fully_auto_fire,cooldown_ms,queue_window_ms,updated_at FROM tools ORDER BY id`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var r toolRow
			if err := rows.Scan(&r.ID, &r.EnsureOwnership, &r.DroppedRespawn, &r.DroppedTimeoutMs, &r.FullyAutoFire, &r.CooldownMs, &r.QueueWindowMs, &r.UpdatedAt); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, rows.Err()

	case "events":
		rows, err := db.Query(`SELECT run,tick,seq,at_ms,type,tool_id,actor,COALESCE(code,'') FROM events
			WHERE (?='' OR tool_id=?) AND (?='' OR type=?)
			ORDER BY run DESC, tick DESC, seq DESC LIMIT ?`, toolID, toolID, evType, evType, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var r eventRow
			if err := rows.Scan(&r.Run, &r.Tick, &r.Seq, &r.AtMs, &r.Type, &r.ToolID, &r.Actor, &r.Code); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, rows.Err()

	case "audits":
		rows, err := db.Query(`SELECT run,tick,at_ms,actor,action,tool_id,COALESCE(reason,'') FROM audits
			WHERE (?='' OR tool_id=?)
			ORDER BY run DESC, tick DESC, seq DESC LIMIT ?`, toolID, toolID, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var r auditRow
			if err := rows.Scan(&r.Run, &r.Tick, &r.AtMs, &r.Actor, &r.Action, &r.ToolID, &r.Reason); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, rows.Err()

	case "counts":
		rows, err := db.Query(`SELECT tool_id,type,COUNT(*) FROM events GROUP BY tool_id,type ORDER BY tool_id,type`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var r countRow
			if err := rows.Scan(&r.ToolID, &r.Type, &r.Count); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, rows.Err()

	default:
		return nil, fmt.Errorf("unknown query %q (tools, events, audits, counts)", q)
	}
}
