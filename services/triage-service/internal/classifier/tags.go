package classifier

// FallbackTag is used whenever the model reply cannot be trusted. It is
// always part of the tag set.
const FallbackTag = "general"

// Tag is one member of the closed classification set
type Tag struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Examples    []string `json:"examples"`
}

// DefaultTags returns the student-support tag set
func DefaultTags() []Tag {
	return []Tag{
		{
			Name:        "academic-results",
			Description: "Queries regarding the release of marks, viewing results on the portal, or missing marks.",
			Examples: []string{
				"When will the results for Financial Management be released?",
				"I can't view my results on the portal, are they out yet?",
				"My results are blocked but I have paid my fees.",
				"I am missing one exam result from my statement.",
				"I have not received my assignment results yet.",
				"When will the marks be visible on the portal?",
			},
		},
		{
			Name:        "academic-exam",
			Description: "Queries regarding final exams, supplementaries, Aegrotat (sick/missed exams), and exam interface formatting issues.",
			Examples: []string{
				"I missed my exam because I was in hospital, how do I apply for Aegrotat?",
				"I need to apply for the supplementary exam in January",
				"The exam interface didn't allow me to create tables",
				"I lost time due to network issues, will I be penalized?",
				"I submitted the wrong file for my exam",
			},
		},
		{
			Name:        "academic-assignment",
			Description: "Queries regarding coursework, assignment submission errors, extension requests, and marking disputes/feedback.",
			Examples: []string{
				"I submitted the wrong file for my WDA Economics assignment",
				"Why did the whole class get 35/70 with no feedback?",
				"My assignment marks are not showing on the portal",
				"Can I request a remark for my assignment?",
				"I missed the quiz deadline due to illness",
			},
		},
		{
			Name:        "admin-transcript",
			Description: "Requests for official/unofficial transcripts, academic records, and resolving transcript holds.",
			Examples: []string{
				"I have a transcript hold but my account is paid in full.",
				"Please send me my official transcript for a job application.",
				"I need to download my unofficial transcript but it says unavailable.",
				"Can I get a full year transcript sent to my employer?",
				"I need a letter of completion and my academic record.",
				"Why is there a hold on my transcript?",
			},
		},
		{
			Name:        "admin-graduation",
			Description: "Inquiries about graduation ceremonies, dates, and collection of certificates.",
			Examples: []string{
				"When will the graduation details be shared?",
				"When and how can I collect my official degree certificate?",
				"Is the graduation ceremony taking place in Johannesburg?",
				"I have completed my degree, what are the next steps for graduation?",
				"Will I receive a digital certificate?",
			},
		},
		{
			Name:        "finance-payment",
			Description: "Issues related to payments made, proof of payment (POP) submission, refunds, and unblocking accounts.",
			Examples: []string{
				"Please find attached my proof of payment.",
				"I have paid my fees but my results are still blocked.",
				"I am on a bursary, why is my account showing arrears?",
				"I would like to request a refund for overpayment.",
				"Please allocate this payment to my student number.",
				"My employer has paid the fees, please update my account.",
			},
		},
		{
			Name:        "finance-fees",
			Description: "Requests for invoices, fee statements, quotes, and balance inquiries.",
			Examples: []string{
				"How much do I currently owe on my account?",
				"Please send me a fee statement for the current year.",
				"I need a quote for my 3rd-year fees to send to my sponsor.",
				"Can I get a pro forma invoice for next year?",
				"Please advise on the fee amount to bring my account up to date.",
			},
		},
		{
			Name:        "registration",
			Description: "Enrolling for new academic years, adding/repeating modules, and registration forms.",
			Examples: []string{
				"How do I register for the 2026 academic year?",
				"I need to re-register for a module I failed.",
				"Can you send me the registration form for the next semester?",
				"I want to register for a single module.",
				"What is the deadline to register for the second semester?",
			},
		},
		{
			Name:        "technical-proctoring",
			Description: "Urgent issues specifically related to SMOWL, camera failures, 'Error C-LS-1001', or being kicked out/freezing *during* an active exam.",
			Examples: []string{
				"My SMOWL says 'something went wrong contact administrator'",
				"Error C-LS-1001",
				"I was writing my exam and the screen disappeared",
				"My camera went off in the middle of the exam",
				"It says I am unregistered but I registered yesterday",
			},
		},
		{
			Name:        "technical-access",
			Description: "General login issues, password resets, and portal access problems NOT occurring during an active exam.",
			Examples: []string{
				"I cannot log into the student portal",
				"I cannot log into the myRegent app",
				"How do I reset my password?",
				"My profile is blocked",
				"I can't access the LMS to view my modules",
				"Do I need to register for Smowl again?",
			},
		},
		{
			Name:        "general-inquiry",
			Description: "Low-urgency information requests: Timetables, module codes, calendar dates, contact info.",
			Examples: []string{
				"Please provide module codes for Business Stats for my bursary",
				"Where can I find the exam timetable?",
				"What is the pass mark for this module?",
				"How do I calculate if I qualify for the exam?",
			},
		},
		{
			Name:        "complaint-escalation",
			Description: "Formal grievances, group complaints about lecturers/marking, or repeated service failures requiring management view.",
			Examples: []string{
				"I am writing on behalf of the 1st semester class regarding unfair marking",
				"We have sent multiple emails with no response regarding the feedback",
				"The lecturer is not responding to emails",
				"I am not satisfied with the service Regent is giving us",
			},
		},
		{
			Name:        FallbackTag,
			Description: "Anything that fits none of the categories above, including automated mail and newsletters.",
			Examples: []string{
				"Thank you",
				"Out of office: I will be back on Monday",
			},
		},
	}
}
