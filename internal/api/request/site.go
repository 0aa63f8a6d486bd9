package request

type CreateSite struct {
	Name             string `json:"name" validate:"required,slug"`
	Domain           string `json:"domain" validate:"omitempty,fqdn|hostname"`
	Port             int    `json:"port" validate:"omitempty,min=1,max=65535"`
	PHPVersion       string `json:"php_version" validate:"omitempty"`
	WordPressVersion string `json:"wordpress_version" validate:"omitempty"`
	WebServer        string `json:"web_server" validate:"omitempty,oneof=nginx apache"`
	Environment      string `json:"environment" validate:"omitempty,oneof=native container"`
	DatabaseEngine   string `json:"database_engine" validate:"omitempty,oneof=sqlite mysql"`
	SSL              bool   `json:"ssl"`
	Multisite        bool   `json:"multisite"`

	AdminUser     string `json:"admin_user" validate:"omitempty"`
	AdminPassword string `json:"admin_password" validate:"omitempty,min=8"`
	AdminEmail    string `json:"admin_email" validate:"omitempty,email"`
}

type MigrateSite struct {
	To string `json:"to" validate:"required,oneof=native container"`
}
