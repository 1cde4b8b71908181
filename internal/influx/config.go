package influx

type Config struct {
	Enabled  bool
	URL      string
	Database string
	Token    string
}
