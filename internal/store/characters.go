package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const characterColumns = "id, name, display_name, personality, voice_description, primary_image_path, is_active, role, team, nationality, physical_features, comedy_angle, signature_expression, signature_pose, props, background_type, background_detail, clothing_description, created_at, updated_at"

func scanCharacter(scanner interface{ Scan(dest ...any) error }) (*Character, error) {
	var (
		id          int64
		name        string
		displayName string
		personality sql.NullString
		voice       sql.NullString
		primary     sql.NullString
		isActive    sql.NullInt64
		role        sql.NullString
		team        sql.NullString
		nationality sql.NullString
		features    sql.NullString
		comedy      sql.NullString
		expression  sql.NullString
		pose        sql.NullString
		props       sql.NullString
		bgType      sql.NullString
		bgDetail    sql.NullString
		clothing    sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&name,
		&displayName,
		&personality,
		&voice,
		&primary,
		&isActive,
		&role,
		&team,
		&nationality,
		&features,
		&comedy,
		&expression,
		&pose,
		&props,
		&bgType,
		&bgDetail,
		&clothing,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	ch := &Character{
		ID:                  id,
		Name:                name,
		DisplayName:         displayName,
		Personality:         personality.String,
		VoiceDescription:    voice.String,
		PrimaryImagePath:    primary.String,
		IsActive:            isActive.Int64 != 0,
		Role:                role.String,
		Team:                team.String,
		Nationality:         nationality.String,
		PhysicalFeatures:    features.String,
		ComedyAngle:         comedy.String,
		SignatureExpression: expression.String,
		SignaturePose:       pose.String,
		Props:               props.String,
		BackgroundType:      bgType.String,
		BackgroundDetail:    bgDetail.String,
		ClothingDescription: clothing.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		ch.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		ch.UpdatedAt = updated
	}
	return ch, nil
}

// InsertCharacter adds a new cast member and fills in its assigned ID.
func (s *Store) InsertCharacter(ctx context.Context, ch *Character) error {
	if ch == nil {
		return errors.New("nil character")
	}
	now := time.Now().UTC()
	ch.CreatedAt = now
	ch.UpdatedAt = now

	res, err := s.execWithRetry(ctx, `
		INSERT INTO characters (name, display_name, personality, voice_description, primary_image_path, is_active, role, team, nationality, physical_features, comedy_angle, signature_expression, signature_pose, props, background_type, background_detail, clothing_description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.Name,
		ch.DisplayName,
		nullableString(ch.Personality),
		nullableString(ch.VoiceDescription),
		nullableString(ch.PrimaryImagePath),
		boolToInt(ch.IsActive),
		nullableString(ch.Role),
		nullableString(ch.Team),
		nullableString(ch.Nationality),
		nullableString(ch.PhysicalFeatures),
		nullableString(ch.ComedyAngle),
		nullableString(ch.SignatureExpression),
		nullableString(ch.SignaturePose),
		nullableString(ch.Props),
		nullableString(ch.BackgroundType),
		nullableString(ch.BackgroundDetail),
		nullableString(ch.ClothingDescription),
		formatTime(ch.CreatedAt),
		formatTime(ch.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert character %q: %w", ch.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("character insert id: %w", err)
	}
	ch.ID = id
	return nil
}

// ActiveCharacters returns the current cast roster ordered by name.
func (s *Store) ActiveCharacters(ctx context.Context) ([]*Character, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+characterColumns+" FROM characters WHERE is_active = 1 ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("active characters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var characters []*Character
	for rows.Next() {
		ch, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		characters = append(characters, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("active characters: %w", err)
	}
	return characters, nil
}

// GetCharacter returns the character with the given ID, or nil when absent.
func (s *Store) GetCharacter(ctx context.Context, id int64) (*Character, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT "+characterColumns+" FROM characters WHERE id = ?", id)
	ch, err := scanCharacter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get character %d: %w", id, err)
	}
	return ch, nil
}

// AddCharacterImage records a generated or curated image for a character.
func (s *Store) AddCharacterImage(ctx context.Context, img *CharacterImage) error {
	if img == nil {
		return errors.New("nil character image")
	}
	img.CreatedAt = time.Now().UTC()

	res, err := s.execWithRetry(ctx, `
		INSERT INTO character_images (character_id, image_path, image_type, pose_description, is_primary, is_style_reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		img.CharacterID,
		img.ImagePath,
		img.ImageType,
		nullableString(img.PoseDescription),
		boolToInt(img.IsPrimary),
		boolToInt(img.IsStyleReference),
		formatTime(img.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert character image: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("character image insert id: %w", err)
	}
	img.ID = id
	return nil
}

// StyleReferences returns up to limit image paths flagged as style
// references for a character, newest first.
func (s *Store) StyleReferences(ctx context.Context, characterID int64, limit int) ([]string, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 3
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT image_path FROM character_images
		WHERE character_id = ? AND is_style_reference = 1
		ORDER BY id DESC LIMIT ?`, characterID, limit)
	if err != nil {
		return nil, fmt.Errorf("style references: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan style reference: %w", err)
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("style references: %w", err)
	}
	return paths, nil
}
