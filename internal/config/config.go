package config

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	Database    Database
	Checkout    Checkout
	Auth        Auth

	Mpesa  Mpesa  `envPrefix:"MPESA_"`
	Airtel Airtel `envPrefix:"AIRTEL_"`
	Kafka  Kafka  `envPrefix:"KAFKA_"`
}

type Database struct {
	Driver       string `env:"DATABASE_DRIVER" envDefault:"sqlite"` // sqlite, mysql
	URL          string `env:"DATABASE_URL" envDefault:"checkout.db"`
	MaxIdleConns int    `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"10"`
	MaxOpenConns int    `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"50"`
}

type Checkout struct {
	VATRate  string `env:"VAT_RATE" envDefault:"0.16"`
	Currency string `env:"CURRENCY" envDefault:"KES"`
}

type Auth struct {
	JWTSecret string `env:"AUTH_JWT_SECRET"`
}

// Mpesa holds Daraja STK push credentials. An empty BaseApiURL disables the gateway.
type Mpesa struct {
	BaseApiURL      string `env:"BASE_API_URL"`
	ConsumerKey     string `env:"CONSUMER_KEY"`
	ConsumerSecret  string `env:"CONSUMER_SECRET"`
	ShortCode       string `env:"SHORT_CODE"`
	Passkey         string `env:"PASSKEY"`
	CallbackURL     string `env:"CALLBACK_URL"`
	TransactionType string `env:"TRANSACTION_TYPE" envDefault:"CustomerPayBillOnline"`
}

type Airtel struct {
	BaseApiURL        string `env:"BASE_API_URL"`
	ClientID          string `env:"CLIENT_ID"`
	ClientSecret      string `env:"CLIENT_SECRET"`
	Country           string `env:"COUNTRY" envDefault:"KE"`
	Currency          string `env:"CURRENCY" envDefault:"KES"`
	SuccessStatusCode string `env:"SUCCESS_STATUS_CODE" envDefault:"TS"`
}

type Kafka struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"checkout-events"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}
