package htmltext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractParagraphElements(t *testing.T) {
	fragment := `<p>الفصل الاول في الطهاره</p><p></p><p>ثم ذكر المصنف احكام الوضوء</p>`

	paras := Extract(fragment)
	require.Len(t, paras, 2)

	// The empty middle <p> still occupies index 1.
	assert.Equal(t, 0, paras[0].Index)
	assert.Equal(t, "الفصل الاول في الطهاره", paras[0].Text)
	assert.Equal(t, 2, paras[1].Index)
	assert.Equal(t, "ثم ذكر المصنف احكام الوضوء", paras[1].Text)
}

func TestExtractNewlineFallback(t *testing.T) {
	fragment := "السطر الاول\n\nالسطر الثالث"

	paras := Extract(fragment)
	require.Len(t, paras, 2)
	assert.Equal(t, 0, paras[0].Index)
	assert.Equal(t, "السطر الاول", paras[0].Text)
	assert.Equal(t, 2, paras[1].Index)
	assert.Equal(t, "السطر الثالث", paras[1].Text)
}

func TestExtractJoinsTitleSpans(t *testing.T) {
	fragment := "<span class=\"chapter-title\">\nباب صفه الصلاه</span>\nنص الباب"

	paras := Extract(fragment)
	require.NotEmpty(t, paras)
	assert.Equal(t, "باب صفه الصلاه", paras[0].Text)
}

func TestExtractEmpty(t *testing.T) {
	assert.Nil(t, Extract(""))
	assert.Nil(t, Extract("   "))
}

func TestNearest(t *testing.T) {
	paras := []Paragraph{
		{Index: 0, Text: "الفصل الاول في الطهاره واحكامها"},
		{Index: 1, Text: "باب صفه الصلاه وشروطها"},
		{Index: 2, Text: "فصل في الزكاه ومصارفها"},
	}

	assert.Equal(t, 1, Nearest(paras, "صفه الصلاه"))
	assert.Equal(t, 2, Nearest(paras, "احكام الزكاه ومصارفها"))
	assert.Equal(t, -1, Nearest(paras, ""))
	assert.Equal(t, -1, Nearest(nil, "الصلاه"))
	assert.Equal(t, -1, Nearest(paras, "qwerty"))
}
