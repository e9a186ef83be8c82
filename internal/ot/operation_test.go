package ot

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_WireForm(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		want string
	}{
		{"insert", Insert(3, "hi"), `{"type":"insert","position":3,"content":"hi"}`},
		{"insert at zero with empty content", Insert(0, ""), `{"type":"insert","position":0,"content":""}`},
		{"delete", Delete(0, 4), `{"type":"delete","position":0,"length":4}`},
		{"captured delete", Operation{Kind: KindDelete, Position: 1, Length: 2, Deleted: "ab"}, `{"type":"delete","position":1,"length":2,"deleted":"ab"}`},
		{"retain", Retain(7), `{"type":"retain","length":7}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Serialize(tt.op)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))

			back, err := Deserialize(data)
			require.NoError(t, err)
			assert.Equal(t, tt.op, back)
		})
	}
}

func TestOperation_DeserializeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"unknown type", `{"type":"move","position":1}`},
		{"negative position", `{"type":"insert","position":-1,"content":"x"}`},
		{"negative length", `{"type":"delete","position":0,"length":-2}`},
		{"content on delete", `{"type":"delete","position":0,"length":1,"content":"x"}`},
		{"not an object", `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Deserialize([]byte(tt.json))
			assert.Error(t, err)
		})
	}
}

func TestOperation_DeserializeMissingOptionalFields(t *testing.T) {
	op, err := Deserialize([]byte(`{"type":"insert","content":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, Insert(0, "x"), op)

	op, err = Deserialize([]byte(`{"type":"retain"}`))
	require.NoError(t, err)
	assert.Equal(t, Retain(0), op)
}

func TestOperation_EmbeddedInStruct(t *testing.T) {
	type envelope struct {
		Operation Operation `json:"operation"`
	}
	in := envelope{Operation: Insert(2, "ü")}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out envelope
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestOperation_SizeAndEnd(t *testing.T) {
	assert.Equal(t, 3, Insert(1, "日本語").Size())
	assert.Equal(t, 4, Insert(1, "日本語").End())
	assert.Equal(t, 5, Delete(2, 3).End())
	assert.Equal(t, 0, Retain(0).Size())
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, `insert(1,"a")`, Insert(1, "a").String())
	assert.Equal(t, "delete(2,3)", Delete(2, 3).String())
	assert.Equal(t, "retain(4)", Retain(4).String())
}
