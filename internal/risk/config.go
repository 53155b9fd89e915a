package risk

// Config holds every tunable the engine reads: thresholds, flag weights,
// denylists, and the fixed currency conversion table. Values are plain data
// passed into NewEngine rather than hidden globals, so tests can override
// any of them without cross-test leakage.
type Config struct {
	// Velocity thresholds (count per window).
	EmailHourlyMax int
	EmailDailyMax  int
	IPHourlyMax    int
	IPDailyMax     int

	// Amount thresholds in reference-currency (USD) units.
	AmountElevated float64
	AmountHigh     float64
	AmountCritical float64

	// CurrencyRates converts a unit of each currency to the reference
	// currency. Fixed constants, not live rates: thresholds only need to be
	// order-of-magnitude right and determinism matters more than precision.
	CurrencyRates map[string]float64

	// Email rules.
	DisposableDomains []string
	SuspiciousLocal   []string // substrings in the local part that suggest throwaway addresses
	MinDomainLength   int
	MaxLocalLength    int

	// Device rules.
	BotSignatures []string
	MinUALength   int
	MaxUALength   int

	// Behavioral rules.
	MinSessionSeconds  int
	MaxSessionSeconds  int
	ReferrerDenylist   []string

	// Location rules.
	HighRiskCountries   []string
	MediumRiskCountries []string
}

// Flag score weights. The decision table in decide() is calibrated against
// these exact values.
const (
	scoreEmailVelocityHourly = 20
	scoreEmailVelocityDaily  = 15
	scoreIPVelocityHourly    = 15
	scoreIPVelocityDaily     = 10

	scoreAmountElevated = 10
	scoreAmountHigh     = 20
	scoreAmountCritical = 30

	scoreDisposableEmail = 40
	scoreSuspiciousLocal = 15
	scoreShortDomain     = 10
	scoreLongLocal       = 10

	scoreBotSignature    = 30
	scoreAnomalousUA     = 10

	scoreFastSession      = 15
	scoreLongSession      = 5
	scoreBadReferrer      = 15

	scoreHighRiskCountry   = 25
	scoreMediumRiskCountry = 10
)

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		EmailHourlyMax: 5,
		EmailDailyMax:  20,
		IPHourlyMax:    10,
		IPDailyMax:     50,

		AmountElevated: 100,
		AmountHigh:     500,
		AmountCritical: 1000,

		CurrencyRates: map[string]float64{
			"usd": 1.0,
			"eur": 1.10,
			"gbp": 1.27,
			"cad": 0.74,
		},

		DisposableDomains: []string{
			"mailinator.com", "guerrillamail.com", "10minutemail.com",
			"tempmail.com", "temp-mail.org", "throwaway.email", "yopmail.com",
			"trashmail.com", "sharklasers.com", "getnada.com", "maildrop.cc",
			"dispostable.com", "fakeinbox.com",
		},
		SuspiciousLocal: []string{"test", "temp", "fake", "spam", "trash", "asdf", "qwerty"},
		MinDomainLength: 4,
		MaxLocalLength:  50,

		BotSignatures: []string{
			"headlesschrome", "phantomjs", "selenium", "puppeteer", "playwright",
			"curl/", "wget/", "python-requests", "python-urllib", "go-http-client",
			"java/", "okhttp", "scrapy", "httpclient", "bot", "spider", "crawler",
		},
		MinUALength: 20,
		MaxUALength: 500,

		MinSessionSeconds: 10,
		MaxSessionSeconds: 3600,
		ReferrerDenylist: []string{
			"bit.ly", "tinyurl.com", "t.co", "clickbank.net", "linkbucks.com",
		},

		HighRiskCountries:   []string{"NG", "GH", "PK", "BD", "VN", "ID"},
		MediumRiskCountries: []string{"RO", "UA", "PH", "IN", "BR", "TR"},
	}
}
