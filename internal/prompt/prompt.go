// Package prompt builds the grounding prompt sent to the model for one question.
package prompt

import (
	"strings"

	"github.com/KaramelBytes/dataloom-cli/internal/frame"
	"github.com/KaramelBytes/dataloom-cli/internal/utils"
)

// PreviewRows is how many leading rows the prompt shows.
const PreviewRows = 5

const role = `You are a data analyst. You answer questions about a table by writing a short
analysis script. The script runs in Starlark, a small Python dialect, against
a pandas-like and plotly-express-like API.`

const rules = `- Reply with exactly one fenced code block opened with ` + "```python" + ` and closed with ` + "```" + `.
- The table is already loaded as ` + "`df`" + `. Do not read files.
- For a chart, build it with ` + "`px`" + ` and assign it to ` + "`fig`" + `.
- Otherwise assign the table, number or text answer to ` + "`result`" + `.
- Do not use print and do not import anything.
- Starlark has no try/except, raise, classes or while-true loops; use fail("message") to abort.
- Comparisons on columns are methods: df[df['age'].gt(30)], not df[df['age'] > 30].`

const api = `df[col] -> Series; df[[c1, c2]] -> DataFrame; df[mask] -> DataFrame
df.columns, df.shape, df.dtypes, len(df)
df.head(n=5), df.tail(n=5), df.describe(), df.corr(), df.dropna(), df.nunique(), df.isnull()
df.sort_values(by, ascending=True), df.value_counts(col)
df.groupby(col)[other].mean() | sum() | count() | min() | max() | median(); df.groupby(col).size()
Series: mean() sum() min() max() median() std() count() nunique() unique() value_counts()
        describe() head(n) tail(n) sort_values(ascending=True) to_list() round(n)
        isnull() notnull() gt(v) ge(v) lt(v) le(v) eq(v) ne(v) isin(list)
        masks combine with & and |; arithmetic + - * / with numbers or series
pd.DataFrame(dict), pd.Series(list, name=None), pd.sql("SELECT ... FROM df")
px.histogram(df, x, color=None, nbins=0, title="")
px.bar(df, x, y=None, color=None, title=""), px.line(df, x, y, color=None, title="")
px.scatter(df, x, y, color=None, title=""), px.pie(df, names, values=None, title="")
px.box(df, x=None, y=None, color=None, title=""), fig.update_layout(title="")`

// Compose returns the prompt for question against f. It has no side effects.
func Compose(f *frame.Frame, question string) string {
	var sb strings.Builder
	section(&sb, "ROLE", role)
	section(&sb, "DATA PREVIEW", f.Head(PreviewRows).String())
	section(&sb, "SCHEMA", strings.TrimRight(f.Info(), "\n"))
	section(&sb, "RULES", rules)
	section(&sb, "AVAILABLE API", api)
	sb.WriteString("[QUESTION]\n")
	sb.WriteString(question)
	sb.WriteString("\n")
	return sb.String()
}

func section(sb *strings.Builder, name, body string) {
	sb.WriteString("[")
	sb.WriteString(name)
	sb.WriteString("]\n")
	sb.WriteString(body)
	sb.WriteString("\n\n")
}

// EstimateTokens approximates the prompt's token count.
func EstimateTokens(prompt string) int { return utils.CountTokens(prompt) }

// Sections lists the prompt's section headers in order.
var Sections = []string{"ROLE", "DATA PREVIEW", "SCHEMA", "RULES", "AVAILABLE API", "QUESTION"}

// Breakdown estimates tokens per prompt section, keyed by section name.
func Breakdown(prompt string) map[string]int {
	headers := make(map[string]bool, len(Sections))
	for _, s := range Sections {
		headers["["+s+"]"] = true
	}
	sections := map[string]string{}
	var name string
	var body strings.Builder
	flush := func() {
		if name != "" {
			sections[name] = strings.TrimSpace(body.String())
		}
		body.Reset()
	}
	for _, line := range strings.Split(prompt, "\n") {
		if headers[line] {
			flush()
			name = strings.Trim(line, "[]")
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()
	return utils.TokenBreakdown(sections)
}
