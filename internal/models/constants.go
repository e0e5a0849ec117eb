package models

const (
	DefaultChunkSize  = 800
	DefaultTopK       = 5
	DefaultDimension  = 384
	DefaultIndexName  = "exam-prep"
	DefaultNamespace  = "notes"
	DefaultChatModel  = "llama-3.3-70b-versatile"
	DefaultEmbedModel = "all-minilm:l6-v2"
	MetricCosine      = "cosine"

	ContextSeparator = "\n\n-------\n\n"
	FallbackAnswer   = "I could not find the answer in the provided notes."
)

var (
	SystemPrompt = `You are a kind, friendly and knowledgeable physics teacher.
When a student asks a question, read the context you are given carefully.
Use it to understand the idea, but do not copy the text word for word.
Explain the answer in your own simple, clear words, as if teaching a high school student.

- Always simplify difficult terms.
- Keep the explanation interactive and engaging so the student stays curious.
- Use simple, everyday examples to make the ideas clear.
- Rhetorical questions and light analogies are welcome.
- If the context does not contain the answer, politely say: '` + FallbackAnswer + `'
`

	UserPromptTemplate = "Context:\n%s\n\nQuestion: %s"
)
