// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cycledb stores the full cycles acquired from instruments into
// a MySQL database.
//
// Each cycle is stored as its flattened full-cycle record, compressed
// with LZ4, alongside its timing and add-data channels.
package cycledb // import "github.com/go-lpc/ionitof/cycledb"

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-lpc/ionitof/bridge"
	"github.com/go-sql-driver/mysql"
	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	drvName = "mysql"

	// ErrDuplicate is returned when a cycle was already stored.
	ErrDuplicate = errors.New("cycledb: duplicate cycle")

	// ErrNotFound is returned when a cycle is not in the database.
	ErrNotFound = errors.New("cycledb: cycle not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS cycles (
	addr     VARCHAR(255) NOT NULL,
	overall  INT NOT NULL,
	cycle    INT NOT NULL,
	abstime  DATETIME(6) NOT NULL,
	run      INT NOT NULL,
	payload  MEDIUMBLOB NOT NULL,
	adddata  BLOB,
	PRIMARY KEY (addr, overall)
)`

// Cycle is a full cycle, as stored in the database.
type Cycle struct {
	Addr    string
	Overall int32
	Cycle   int32
	Time    time.Time
	Run     int
	Flat    []byte // flattened full-cycle record
	AddData []bridge.AddDataChannel
}

// DSN returns the data source name of the named database on host.
func DSN(usr, pwd, host, dbname string) string {
	cfg := mysql.NewConfig()
	cfg.User = usr
	cfg.Passwd = pwd
	cfg.Net = "tcp"
	cfg.Addr = host
	cfg.DBName = dbname
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// DB exposes convenience methods to store and retrieve full cycles.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the database described by dsn.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("cycledb: could not open db: %w", err)
	}

	name := dsn
	if cfg, err := mysql.ParseDSN(dsn); err == nil {
		name = cfg.DBName
	}

	err = ping(db, name)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: name}, nil
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("cycledb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Init creates the tables of the database, if needed.
func (db *DB) Init(ctx context.Context) error {
	_, err := db.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("cycledb: could not create %q tables: %w", db.name, err)
	}
	return nil
}

// Insert stores the provided cycle.
func (db *DB) Insert(ctx context.Context, c Cycle) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	payload, err := compress(c.Flat)
	if err != nil {
		return fmt.Errorf("cycledb: could not compress cycle %d: %w", c.Overall, err)
	}

	adddata, err := msgpack.Marshal(c.AddData)
	if err != nil {
		return fmt.Errorf("cycledb: could not encode add-data of cycle %d: %w", c.Overall, err)
	}

	_, err = db.db.ExecContext(
		ctx,
		"INSERT INTO cycles (addr, overall, cycle, abstime, run, payload, adddata) VALUES (?, ?, ?, ?, ?, ?, ?)",
		c.Addr, c.Overall, c.Cycle, c.Time.UTC(), c.Run, payload, adddata,
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return fmt.Errorf("%w: addr=%q, overall=%d", ErrDuplicate, c.Addr, c.Overall)
		}
		return fmt.Errorf("cycledb: could not insert cycle %d: %w", c.Overall, err)
	}

	return nil
}

// LastOverall returns the last overall cycle stored for the instrument
// at addr, and whether any was stored.
func (db *DB) LastOverall(ctx context.Context, addr string) (int32, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var last sql.NullInt32
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT MAX(overall) FROM cycles WHERE addr = ?", addr,
	)
	if err != nil {
		return 0, false, fmt.Errorf("cycledb: could not query last cycle: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&last)
		if err != nil {
			return 0, false, fmt.Errorf("cycledb: could not get last cycle value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return 0, false, fmt.Errorf("cycledb: could not scan db for last cycle: %w", err)
	}

	return last.Int32, last.Valid, nil
}

// Cycle returns the stored cycle of the instrument at addr with the
// provided overall index.
func (db *DB) Cycle(ctx context.Context, addr string, overall int32) (Cycle, error) {
	cs, err := db.query(ctx,
		"SELECT addr, overall, cycle, abstime, run, payload, adddata FROM cycles WHERE addr = ? AND overall = ?",
		addr, overall,
	)
	if err != nil {
		return Cycle{}, err
	}
	if len(cs) == 0 {
		return Cycle{}, fmt.Errorf("%w: addr=%q, overall=%d", ErrNotFound, addr, overall)
	}
	return cs[0], nil
}

// Range returns the stored cycles of the instrument at addr with an
// overall index in [beg, end).
func (db *DB) Range(ctx context.Context, addr string, beg, end int32) ([]Cycle, error) {
	return db.query(ctx,
		"SELECT addr, overall, cycle, abstime, run, payload, adddata FROM cycles WHERE addr = ? AND overall >= ? AND overall < ? ORDER BY overall",
		addr, beg, end,
	)
}

func (db *DB) query(ctx context.Context, query string, args ...any) ([]Cycle, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cycledb: could not query cycles: %w", err)
	}
	defer rows.Close()

	var cs []Cycle
	for rows.Next() {
		var (
			c       Cycle
			payload []byte
			adddata []byte
		)
		err = rows.Scan(&c.Addr, &c.Overall, &c.Cycle, &c.Time, &c.Run, &payload, &adddata)
		if err != nil {
			return nil, fmt.Errorf("cycledb: could not get cycle values: %w", err)
		}
		c.Flat, err = decompress(payload)
		if err != nil {
			return nil, fmt.Errorf("cycledb: could not decompress cycle %d: %w", c.Overall, err)
		}
		if len(adddata) > 0 {
			err = msgpack.Unmarshal(adddata, &c.AddData)
			if err != nil {
				return nil, fmt.Errorf("cycledb: could not decode add-data of cycle %d: %w", c.Overall, err)
			}
		}
		cs = append(cs, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cycledb: could not scan db for cycles: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("cycledb: context error while retrieving cycles: %w", err)
	}

	return cs, nil
}

func compress(raw []byte) ([]byte, error) {
	var (
		buf = new(bytes.Buffer)
		zw  = lz4.NewWriter(buf)
	)
	_, err := zw.Write(raw)
	if err != nil {
		return nil, err
	}
	err = zw.Close()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(raw []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(raw)))
}
