package services

import (
	"bytes"
	"encoding/json"
	"strings"
)

// RawKind форма сырого значения поставщика
type RawKind int

const (
	RawScalar RawKind = iota
	RawObject
	RawList
)

// RawValue сырой JSON поставщика: скаляр, объект или список.
// Типизированные поля читает только нормализатор
type RawValue struct {
	Kind   RawKind
	Scalar interface{}
	Object map[string]interface{}
	List   []RawValue
}

// Ключи-обертки, в которых поставщики возвращают списки
var listWrapperKeys = []string{"devices", "data", "items", "results"}

// Ключи-обертки одиночного объекта
var objectWrapperKeys = []string{"data", "item", "device"}

// ParseRaw декодирует тело ответа. Числа сохраняются как json.Number
func ParseRaw(body []byte) (RawValue, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var value interface{}
	if err := decoder.Decode(&value); err != nil {
		return RawValue{}, err
	}
	return NewRawValue(value), nil
}

// NewRawValue оборачивает декодированное значение
func NewRawValue(value interface{}) RawValue {
	switch v := value.(type) {
	case map[string]interface{}:
		return RawValue{Kind: RawObject, Object: v}
	case []interface{}:
		list := make([]RawValue, 0, len(v))
		for _, item := range v {
			list = append(list, NewRawValue(item))
		}
		return RawValue{Kind: RawList, List: list}
	default:
		return RawValue{Kind: RawScalar, Scalar: v}
	}
}

// IsNull проверяет, что значение - JSON null
func (r RawValue) IsNull() bool {
	return r.Kind == RawScalar && r.Scalar == nil
}

// Value возвращает исходное декодированное значение
func (r RawValue) Value() interface{} {
	switch r.Kind {
	case RawObject:
		return r.Object
	case RawList:
		list := make([]interface{}, 0, len(r.List))
		for _, item := range r.List {
			list = append(list, item.Value())
		}
		return list
	default:
		return r.Scalar
	}
}

// MarshalJSON сериализует значение обратно в JSON для аудита
func (r RawValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Value())
}

// Lookup ищет поле объекта. Путь с точкой ("position.latitude") проходит по вложенным объектам
func (r RawValue) Lookup(path string) (interface{}, bool) {
	if r.Kind != RawObject {
		return nil, false
	}

	var current interface{} = r.Object
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		value, exists := obj[part]
		if !exists || value == nil {
			return nil, false
		}
		current = value
	}
	return current, true
}

// Items разворачивает ответ со списком: голый список, список под ключом-оберткой или одиночный объект
func (r RawValue) Items() []RawValue {
	switch r.Kind {
	case RawList:
		return r.List
	case RawObject:
		for _, key := range listWrapperKeys {
			if inner, ok := r.Object[key]; ok {
				switch wrapped := NewRawValue(inner); wrapped.Kind {
				case RawList:
					return wrapped.List
				case RawObject:
					return wrapped.Items()
				}
			}
		}
		return []RawValue{r}
	}
	return nil
}

// Unwrap снимает обертку одиночного объекта ({"data": {...}})
func (r RawValue) Unwrap() RawValue {
	if r.Kind == RawList && len(r.List) == 1 {
		return r.List[0].Unwrap()
	}
	if r.Kind != RawObject {
		return r
	}
	for _, key := range objectWrapperKeys {
		if inner, ok := r.Object[key].(map[string]interface{}); ok {
			return RawValue{Kind: RawObject, Object: inner}.Unwrap()
		}
	}
	return r
}
