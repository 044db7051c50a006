package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// JSONPrefix помечает структурированные данные внутри текстового поля data.
//
// Строка, которая сама начинается с этого префикса, при декодировании будет
// ошибочно принята за JSON. Формат задан сервером, поэтому он не меняется.
const JSONPrefix = "<!json!>"

// EncodePayload кодирует данные задачи для отправки в трекер.
//
// Строка отправляется как есть. Map, slice и array сериализуются в JSON
// и получают префикс JSONPrefix; nil map и nil slice кодируются как {} и []. json.RawMessage с объектом или массивом
// передаётся без пересортировки ключей. Остальные типы отклоняются с ErrValidation.
func EncodePayload(data any) (string, error) {
	switch v := data.(type) {
	case string:
		return v, nil
	case json.RawMessage:
		return encodeRaw(v)
	case []byte:
		return "", fmt.Errorf("%w: payload must be a string, map or slice, got []byte", ErrValidation)
	}

	rv := reflect.ValueOf(data)
	if !rv.IsValid() {
		return "", fmt.Errorf("%w: payload must be a string, map or slice, got nil", ErrValidation)
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return JSONPrefix + "{}", nil
		}
	case reflect.Slice, reflect.Array:
		// байтовые slice и array не принимаются: []byte json кодирует как base64-строку
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return "", fmt.Errorf("%w: payload must be a string, map or slice, got %T", ErrValidation, data)
		}
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return JSONPrefix + "[]", nil
		}
	default:
		return "", fmt.Errorf("%w: payload must be a string, map or slice, got %T", ErrValidation, data)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return "", fmt.Errorf("%w: marshal payload: %v", ErrValidation, err)
	}

	return JSONPrefix + withSeparators(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func encodeRaw(raw json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", fmt.Errorf("%w: invalid raw payload: %v", ErrValidation, err)
	}

	compact := buf.Bytes()
	if len(compact) == 0 || (compact[0] != '{' && compact[0] != '[') {
		return "", fmt.Errorf("%w: raw payload must be a JSON object or array", ErrValidation)
	}

	return JSONPrefix + withSeparators(compact), nil
}

// withSeparators добавляет пробел после ',' и ':' вне строковых литералов.
// Трекер и остальные воркеры пишут JSON именно в таком виде.
func withSeparators(compact []byte) string {
	var b strings.Builder
	b.Grow(len(compact) + len(compact)/8)

	inString, escaped := false, false
	for _, c := range compact {
		b.WriteByte(c)
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && (c == ',' || c == ':'):
			b.WriteByte(' ')
		}
	}

	return b.String()
}

// DecodePayload разбирает поле data, полученное от трекера.
//
// Если строка начинается с JSONPrefix, остаток декодируется как JSON
// (map[string]any, []any и т.д.), иначе строка возвращается без изменений.
func DecodePayload(s string) (any, error) {
	rest, ok := strings.CutPrefix(s, JSONPrefix)
	if !ok {
		return s, nil
	}

	var v any
	if err := json.Unmarshal([]byte(rest), &v); err != nil {
		return nil, fmt.Errorf("decode structured payload: %w", err)
	}
	return v, nil
}

// Job описывает задачу, выданную трекером.
type Job struct {
	// ID: номер задачи, назначенный сервером.
	ID int

	// Data: строка или декодированный JSON.
	Data any

	// Raw: значение поля data в том виде, в каком его прислал сервер.
	Raw string
}

// Structured сообщает, пришли ли данные задачи в виде JSON.
func (j *Job) Structured() bool {
	return strings.HasPrefix(j.Raw, JSONPrefix)
}

// Text возвращает данные задачи как строку, если они не структурированные.
func (j *Job) Text() (string, bool) {
	s, ok := j.Data.(string)
	return s, ok
}

// Unmarshal декодирует структурированные данные задачи в v.
func (j *Job) Unmarshal(v any) error {
	rest, ok := strings.CutPrefix(j.Raw, JSONPrefix)
	if !ok {
		return fmt.Errorf("%w: job %d carries plain text data", ErrValidation, j.ID)
	}
	return json.Unmarshal([]byte(rest), v)
}
