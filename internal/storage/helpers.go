package storage

import (
	"database/sql"
	"fmt"

	"kvchat/internal/models"
)

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	defer rows.Close()
	var out []models.Message
	for rows.Next() {
		var (
			m      models.Message
			author sql.NullString
		)
		if err := rows.Scan(&m.Room, &m.Index, &author, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		m.Author = author.String
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
