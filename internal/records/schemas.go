package records

// Document is the metadata kept for a documentation file.
var Document = &Schema{
	Name:  "document",
	Table: "documents",
	Fields: []Field{
		{Name: "title", Kind: KindString, Required: true, MaxLength: 255},
		{Name: "file_name", Kind: KindString, Required: true, MaxLength: 255},
		{Name: "mime_type", Kind: KindString, Nullable: true, MaxLength: 127},
		{Name: "drive_file_id", Kind: KindString, Nullable: true, MaxLength: 255},
		{Name: "size", Kind: KindInt, Nullable: true, Min: Int64(0)},
		{Name: "description", Kind: KindText, Nullable: true, Markdown: true},
	},
}

// UserCustomer is a customer account.
var UserCustomer = &Schema{
	Name:  "user",
	Table: "user_customers",
	Fields: []Field{
		{Name: "first_name", Kind: KindString, Required: true, MaxLength: 100},
		{Name: "last_name", Kind: KindString, Required: true, MaxLength: 100},
		{Name: "email", Kind: KindEmail, Required: true, MaxLength: 254},
		{Name: "phone", Kind: KindString, Nullable: true, MaxLength: 32},
		{Name: "is_active", Kind: KindBool, Default: true},
	},
}
