package constants

type LanguageType string

const (
	LanguageC    LanguageType = "c"
	LanguageCpp  LanguageType = "cpp"
	LanguageRust LanguageType = "rust"
)

// ExpressionKind 表达式求值方式
type ExpressionKind string

const (
	ExpressionSimple ExpressionKind = "simple"
	ExpressionPython ExpressionKind = "python"
	ExpressionNative ExpressionKind = "native"
)
