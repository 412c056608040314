package memdb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/docbind"
)

// Set creates or wholesale-replaces the document at path. The data map
// is canonicalized before storage, so key order never affects change
// detection. Listeners on the document and on its parent collection
// are notified synchronously before Set returns.
func (d *DB) Set(path string, data map[string]any) error {
	mustValidPath(path, true)

	canon, err := marshalCanonical(data)
	if err != nil {
		return fmt.Errorf("canonicalize document %s: %w", path, err)
	}

	d.mu.Lock()
	rev := d.clock.Next()
	_, err = d.db.Exec(`
		INSERT INTO documents (path, parent, doc_id, data, rev)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data, rev = excluded.rev
	`, path, parentOf(path), docIDOf(path), string(canon), rev)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write document %s: %w", path, err)
	}

	d.log.Debug("document written", "path", path, "rev", rev)
	d.notify(path)
	return nil
}

// Delete removes the document at path. Deleting a missing document is
// a no-op and triggers no deliveries.
func (d *DB) Delete(path string) error {
	mustValidPath(path, true)

	d.mu.Lock()
	res, err := d.db.Exec(`DELETE FROM documents WHERE path = ?`, path)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete document %s: %w", path, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document %s: %w", path, err)
	}
	if n == 0 {
		return nil
	}

	d.log.Debug("document deleted", "path", path)
	d.notify(path)
	return nil
}

// readDoc loads the current snapshot of a document. Callers hold d.mu.
func (d *DB) readDoc(path string, fromCache bool) (docbind.DocumentSnapshot, error) {
	var raw string
	err := d.db.QueryRow(`SELECT data FROM documents WHERE path = ?`, path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return docSnap{id: docIDOf(path), fromCache: fromCache}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", path, err)
	}

	data, err := unmarshalData(raw)
	if err != nil {
		return nil, fmt.Errorf("decode document %s: %w", path, err)
	}
	return docSnap{id: docIDOf(path), exists: true, data: data, fromCache: fromCache}, nil
}
